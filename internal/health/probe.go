package health

import (
	"fmt"
	"os"
	"os/exec"
)

// CheckNSSM records whether the NSSM executable at path can be found.
func (m *Monitor) CheckNSSM(path string) {
	if path == "" {
		m.Update(ComponentNSSM, Unhealthy, "no nssm path configured")
		return
	}
	if _, err := os.Stat(path); err == nil {
		m.Update(ComponentNSSM, Healthy, path)
		return
	}
	if resolved, err := exec.LookPath(path); err == nil {
		m.Update(ComponentNSSM, Healthy, resolved)
		return
	}
	m.Update(ComponentNSSM, Unhealthy, fmt.Sprintf("%s not found", path))
}

// CheckElevation records whether mutating operations are possible.
func (m *Monitor) CheckElevation(elevated, adminCheckDisabled bool) {
	switch {
	case elevated:
		m.Update(ComponentElevation, Healthy, "running elevated")
	case adminCheckDisabled:
		m.Update(ComponentElevation, Degraded, "not elevated, admin check disabled")
	default:
		m.Update(ComponentElevation, Degraded, "not elevated, service changes unavailable")
	}
}

// RecordError sets the component Healthy when err is nil and to status
// otherwise.
func (m *Monitor) RecordError(component string, err error, status Status) {
	if err == nil {
		m.Update(component, Healthy, "")
		return
	}
	m.Update(component, status, err.Error())
}
