//go:build !windows

package svcquery

import "github.com/hongwen000/NSSM-GUI/pkg/models"

// GetStatus is only implemented on Windows.
func GetStatus(name string) (models.ServiceInfo, error) {
	return models.ServiceInfo{Name: name, State: models.StateUnknown}, ErrUnsupported
}

// ListServices is only implemented on Windows.
func ListServices() ([]models.ServiceInfo, error) {
	return nil, ErrUnsupported
}

// ListNSSMServices is only implemented on Windows.
func ListNSSMServices() ([]models.ServiceInfo, error) {
	return nil, ErrUnsupported
}

// ProcessID is only implemented on Windows.
func ProcessID(name string) (uint32, error) {
	return 0, ErrUnsupported
}
