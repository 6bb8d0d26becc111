// Package svcquery reads service state from the Windows Service Control
// Manager. Other platforms return ErrUnsupported.
package svcquery

import (
	"errors"
	"strings"

	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var (
	ErrUnsupported = errors.New("svcquery: not supported on this platform")
	ErrNotFound    = errors.New("svcquery: service not found")
	ErrNotRunning  = errors.New("svcquery: service has no process")
)

// IsNSSMBinary reports whether a service image path runs through nssm.
func IsNSSMBinary(path string) bool {
	return strings.Contains(strings.ToLower(path), "nssm")
}

// FilterNSSM keeps only services hosted by nssm.
func FilterNSSM(services []models.ServiceInfo) []models.ServiceInfo {
	out := make([]models.ServiceInfo, 0, len(services))
	for _, s := range services {
		if s.IsNSSM || IsNSSMBinary(s.BinaryPath) {
			s.IsNSSM = true
			out = append(out, s)
		}
	}
	return out
}

// mapWMIState converts Win32_Service.State.
func mapWMIState(state string) string {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running":
		return models.StateRunning
	case "stopped":
		return models.StateStopped
	case "paused":
		return models.StatePaused
	case "start pending", "continue pending":
		return models.StateStarting
	case "stop pending", "pause pending":
		return models.StateStopping
	default:
		return models.StateUnknown
	}
}

// mapWMIStartMode converts Win32_Service.StartMode to NSSM start names.
func mapWMIStartMode(mode string, delayed bool) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "auto":
		if delayed {
			return models.StartDelayedAuto
		}
		return models.StartAuto
	case "manual":
		return models.StartDemand
	case "disabled":
		return models.StartDisabled
	default:
		return ""
	}
}
