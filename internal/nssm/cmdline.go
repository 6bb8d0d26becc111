package nssm

import (
	"errors"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// SplitCommandLine splits a Windows command line into arguments using the
// Microsoft C runtime rules: whitespace separates arguments outside double
// quotes, 2n backslashes before a quote yield n backslashes and toggle
// quoting, 2n+1 yield n backslashes and a literal quote, and "" inside a
// quoted section is a literal quote. Carets are not special.
func SplitCommandLine(line string) ([]string, error) {
	var (
		args        []string
		cur         strings.Builder
		inQuote     bool
		inToken     bool
		backslashes int
	)

	flushBackslashes := func() {
		for ; backslashes > 0; backslashes-- {
			cur.WriteByte('\\')
		}
	}

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch ch {
		case '\\':
			backslashes++
			inToken = true
		case '"':
			for n := backslashes / 2; n > 0; n-- {
				cur.WriteByte('\\')
			}
			odd := backslashes%2 == 1
			backslashes = 0
			inToken = true
			switch {
			case odd:
				cur.WriteByte('"')
			case inQuote && i+1 < len(line) && line[i+1] == '"':
				cur.WriteByte('"')
				i++
			default:
				inQuote = !inQuote
			}
		case ' ', '\t':
			flushBackslashes()
			if inQuote {
				cur.WriteByte(ch)
				continue
			}
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			flushBackslashes()
			cur.WriteByte(ch)
			inToken = true
		}
	}
	flushBackslashes()
	if inToken {
		args = append(args, cur.String())
	}
	if inQuote {
		return args, errUnterminatedQuote
	}
	return args, nil
}

// QuoteArg quotes s so that SplitCommandLine returns it unchanged.
func QuoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}

	var b strings.Builder
	b.WriteByte('"')
	backslashes := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			backslashes++
			continue
		case '"':
			b.WriteString(strings.Repeat(`\`, backslashes*2+1))
			b.WriteByte('"')
		default:
			b.WriteString(strings.Repeat(`\`, backslashes))
			b.WriteByte(s[i])
		}
		backslashes = 0
	}
	b.WriteString(strings.Repeat(`\`, backslashes*2))
	b.WriteByte('"')
	return b.String()
}
