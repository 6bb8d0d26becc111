// Package audit appends a tamper-evident JSONL record of every change made
// to services, templates and configuration.
package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

var log = logging.L("audit")

// Event types for audit logging.
const (
	EventServiceInstall = "service_install"
	EventServiceEdit    = "service_edit"
	EventServiceRemove  = "service_remove"
	EventServiceControl = "service_control"
	EventServiceStartup = "service_startup"
	EventBatch          = "batch_operation"
	EventTemplateChange = "template_change"
	EventConfigChange   = "config_change"
	EventNSSMDownload   = "nssm_download"
	EventAppStart       = "app_start"
	EventAppStop        = "app_stop"
	EventLogRotated     = "log_rotated"
)

const genesisHash = "genesis"

// criticalEvents are event types that require fsync after writing.
var criticalEvents = map[string]bool{
	EventServiceInstall: true,
	EventServiceEdit:    true,
	EventServiceRemove:  true,
	EventConfigChange:   true,
}

// Entry is a single audit log record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	OpID      string         `json:"opId,omitempty"`
	Service   string         `json:"service,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// NewOpID returns a fresh operation id.
func NewOpID() string {
	return uuid.NewString()
}

type opIDKey struct{}

// WithOpID attaches an operation id to ctx so nested operations are audited
// under the caller's id.
func WithOpID(ctx context.Context, opID string) context.Context {
	return context.WithValue(ctx, opIDKey{}, opID)
}

// OpIDFrom returns the operation id carried by ctx, or a fresh one.
func OpIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(opIDKey{}).(string); ok && id != "" {
		return id
	}
	return NewOpID()
}

// Logger writes tamper-evident JSONL audit logs with a SHA-256 hash chain.
// On log rotation, a sentinel entry (EventLogRotated) is written as the first
// record in the new file, with prevHash linking to the last entry of the old file.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger opens the audit log at path, continuing the hash chain of any
// existing file.
func NewLogger(path string, maxSizeMB, maxBackups int) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	l := &Logger{
		filePath:   path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   genesisHash,
	}
	if last, err := lastHash(path); err == nil && last != "" {
		l.prevHash = last
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	log.Debug("audit logger started", "path", path)
	return l, nil
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Log writes a single audit entry with hash chain linking.
// The hash chain is only advanced after a successful write to prevent
// gaps: if the write fails, the next entry will re-link to the same prevHash.
// Safe to call on a nil receiver (no-op).
func (l *Logger) Log(eventType, opID, service string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		OpID:      opID,
		Service:   service,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	data, err := encode(&entry)
	if err != nil {
		log.Error("failed to encode audit entry", logging.KeyError, err.Error(), "eventType", eventType)
		l.dropped.Add(1)
		return
	}

	if l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit log rotation failed", logging.KeyError, err.Error())
			l.dropped.Add(1)
			return
		}
		// The sentinel moved the chain; relink this entry to it.
		entry.PrevHash = l.prevHash
		if data, err = encode(&entry); err != nil {
			l.dropped.Add(1)
			return
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("failed to write audit entry", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)

	// Only advance hash chain after successful write
	l.prevHash = entry.EntryHash

	if criticalEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Error("failed to fsync critical audit entry", "error", err, "eventType", eventType)
		}
	}
}

// Close flushes and closes the audit log file.
// Safe to call on a nil receiver (no-op).
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// DroppedCount returns the number of audit entries that failed to write.
// Returns -1 if the logger is nil (not initialized), distinguishing
// "logger not available" from "logger working with zero drops".
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// computeHash produces the SHA-256 hash for an audit entry.
// Fields are length-prefixed so that no field value can mimic a boundary.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.OpID, entry.Service, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// encode sets e.EntryHash and returns the JSONL line.
func encode(e *Entry) ([]byte, error) {
	h, err := computeHash(*e)
	if err != nil {
		return nil, err
	}
	e.EntryHash = h
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal audit entry: %w", err)
	}
	return append(data, '\n'), nil
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	prevHashBeforeRotation := l.prevHash

	if l.file != nil {
		l.file.Close()
	}

	if err := logging.ShiftBackups(l.filePath, l.maxBackups); err != nil {
		log.Warn("audit log rotation: failed to shift backups", "error", err)
	}

	if err := l.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  prevHashBeforeRotation,
		Details: map[string]any{
			"previousFile": filepath.Base(logging.BackupName(l.filePath, 1)),
		},
	}
	data, err := encode(&sentinel)
	if err == nil {
		var n int
		n, err = l.file.Write(data)
		l.written += int64(n)
	}
	if err != nil {
		log.Error("rotation sentinel not written, hash chain broken", logging.KeyError, err.Error())
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
		return nil
	}
	l.prevHash = sentinel.EntryHash
	return nil
}

// ReadEntries parses every entry of an audit file.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return entries, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// Tail returns the last n entries of the audit file at path.
func Tail(path string, n int) ([]Entry, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// ErrChainBroken is returned by Verify when an entry does not link to its
// predecessor or its hash does not match its content.
var ErrChainBroken = errors.New("audit hash chain broken")

// Verify checks the hash chain of one audit file and returns the number of
// entries checked. The first entry may link to anything; it is either the
// genesis entry or a rotation sentinel pointing into the previous file.
func Verify(path string) (int, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		want, err := computeHash(e)
		if err != nil {
			return i, err
		}
		if e.EntryHash != want {
			return i, fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i+1)
		}
		if i > 0 && e.PrevHash != entries[i-1].EntryHash {
			return i, fmt.Errorf("%w: entry %d does not link to entry %d", ErrChainBroken, i+1, i)
		}
	}
	return len(entries), nil
}

func lastHash(path string) (string, error) {
	entries, err := ReadEntries(path)
	if err != nil || len(entries) == 0 {
		return "", err
	}
	return entries[len(entries)-1].EntryHash, nil
}
