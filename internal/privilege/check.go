package privilege

import (
	"errors"
	"strings"
)

// ErrNotElevated is returned when an operation needs administrator rights
// the current process does not have.
var ErrNotElevated = errors.New("administrator privileges required")

// elevatedOperations lists the nssm verbs and manager actions that change
// service state. Reads (status, dump, get) are deliberately absent.
var elevatedOperations = map[string]bool{
	"install":  true,
	"edit":     true,
	"remove":   true,
	"delete":   true,
	"start":    true,
	"stop":     true,
	"restart":  true,
	"pause":    true,
	"continue": true,
	"set":      true,
	"reset":    true,
	"rotate":   true,
	"enable":   true,
	"disable":  true,
}

// RequiresElevation returns true if the operation needs admin privileges.
func RequiresElevation(op string) bool {
	return elevatedOperations[strings.ToLower(op)]
}
