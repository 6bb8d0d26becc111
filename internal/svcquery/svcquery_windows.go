//go:build windows

package svcquery

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("svcquery")

const nssmServicesQuery = "SELECT Name, DisplayName, State, StartMode, DelayedAutoStart, ProcessId, PathName FROM Win32_Service WHERE PathName LIKE '%nssm%'"

// GetStatus queries a single Windows service by name.
func GetStatus(name string) (models.ServiceInfo, error) {
	m, err := mgr.Connect()
	if err != nil {
		return models.ServiceInfo{}, fmt.Errorf("svcquery: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := openService(m, name)
	if err != nil {
		return models.ServiceInfo{Name: name, State: models.StateUnknown}, err
	}
	defer s.Close()

	return describe(name, s)
}

// ProcessID returns the PID of the service's host process. A service that
// is not running yields ErrNotRunning.
func ProcessID(name string) (uint32, error) {
	m, err := mgr.Connect()
	if err != nil {
		return 0, fmt.Errorf("svcquery: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := openService(m, name)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return 0, fmt.Errorf("svcquery: query %s: %w", name, err)
	}
	if status.ProcessId == 0 {
		return 0, fmt.Errorf("%s: %w", name, ErrNotRunning)
	}
	return status.ProcessId, nil
}

// ListServices returns all services on the system.
func ListServices() ([]models.ServiceInfo, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, fmt.Errorf("svcquery: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	names, err := m.ListServices()
	if err != nil {
		return nil, fmt.Errorf("svcquery: list services: %w", err)
	}

	services := make([]models.ServiceInfo, 0, len(names))
	for _, name := range names {
		s, err := m.OpenService(name)
		if err != nil {
			continue
		}
		info, err := describe(name, s)
		s.Close()
		if err != nil {
			continue
		}
		services = append(services, info)
	}
	return services, nil
}

// ListNSSMServices returns services whose image path runs nssm. WMI answers
// this in one query; if WMI is unavailable every service is opened through
// the SCM and filtered.
func ListNSSMServices() ([]models.ServiceInfo, error) {
	services, err := queryWMI(nssmServicesQuery)
	if err == nil {
		return services, nil
	}
	log.Warn("WMI service query failed, falling back to SCM enumeration", "error", err.Error())

	all, err := ListServices()
	if err != nil {
		return nil, err
	}
	return FilterNSSM(all), nil
}

func openService(m *mgr.Mgr, name string) (*mgr.Service, error) {
	s, err := m.OpenService(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("svcquery: open service %s: %w", name, err)
	}
	return s, nil
}

func describe(name string, s *mgr.Service) (models.ServiceInfo, error) {
	status, err := s.Query()
	if err != nil {
		return models.ServiceInfo{Name: name, State: models.StateUnknown}, fmt.Errorf("svcquery: query %s: %w", name, err)
	}

	cfg, _ := s.Config()
	return models.ServiceInfo{
		Name:        name,
		DisplayName: cfg.DisplayName,
		State:       mapWindowsState(status.State),
		StartType:   mapWindowsStartType(cfg.StartType, cfg.DelayedAutoStart),
		PID:         status.ProcessId,
		IsNSSM:      IsNSSMBinary(cfg.BinaryPathName),
		BinaryPath:  cfg.BinaryPathName,
	}, nil
}

// queryWMI runs a Win32_Service query in root\cimv2.
func queryWMI(query string) ([]models.ServiceInfo, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		// S_FALSE: COM already initialized on this thread.
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			return nil, fmt.Errorf("failed to initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, fmt.Errorf("failed to create WMI locator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("failed to query WMI locator: %w", err)
	}
	defer locator.Release()

	serviceVar, err := oleutil.CallMethod(locator, "ConnectServer", nil, `root\cimv2`)
	if err != nil {
		return nil, fmt.Errorf("connect root\\cimv2: %w", err)
	}
	defer serviceVar.Clear()
	wmi := serviceVar.ToIDispatch()

	resultVar, err := oleutil.CallMethod(wmi, "ExecQuery", query)
	if err != nil {
		return nil, fmt.Errorf("exec query: %w", err)
	}
	defer resultVar.Clear()
	result := resultVar.ToIDispatch()

	countVar, err := oleutil.GetProperty(result, "Count")
	if err != nil {
		return nil, fmt.Errorf("result count: %w", err)
	}
	count := int(countVar.Val)
	countVar.Clear()

	services := make([]models.ServiceInfo, 0, count)
	for i := 0; i < count; i++ {
		itemVar, err := oleutil.CallMethod(result, "ItemIndex", i)
		if err != nil {
			continue
		}
		item := itemVar.ToIDispatch()
		if item == nil {
			itemVar.Clear()
			continue
		}

		delayed := boolProperty(item, "DelayedAutoStart")
		path := stringProperty(item, "PathName")
		services = append(services, models.ServiceInfo{
			Name:        stringProperty(item, "Name"),
			DisplayName: stringProperty(item, "DisplayName"),
			State:       mapWMIState(stringProperty(item, "State")),
			StartType:   mapWMIStartMode(stringProperty(item, "StartMode"), delayed),
			PID:         uint32(intProperty(item, "ProcessId")),
			IsNSSM:      IsNSSMBinary(path),
			BinaryPath:  path,
		})
		itemVar.Clear()
	}
	return services, nil
}

func stringProperty(d *ole.IDispatch, name string) string {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return ""
	}
	defer v.Clear()
	if v.VT == ole.VT_NULL || v.VT == ole.VT_EMPTY {
		return ""
	}
	return v.ToString()
}

func intProperty(d *ole.IDispatch, name string) int64 {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return 0
	}
	defer v.Clear()
	return v.Val
}

func boolProperty(d *ole.IDispatch, name string) bool {
	v, err := oleutil.GetProperty(d, name)
	if err != nil {
		return false
	}
	defer v.Clear()
	return v.Val != 0
}

func mapWindowsState(state svc.State) string {
	switch state {
	case svc.Running:
		return models.StateRunning
	case svc.Stopped:
		return models.StateStopped
	case svc.Paused:
		return models.StatePaused
	case svc.StartPending, svc.ContinuePending:
		return models.StateStarting
	case svc.StopPending, svc.PausePending:
		return models.StateStopping
	default:
		return models.StateUnknown
	}
}

func mapWindowsStartType(startType uint32, delayed bool) string {
	switch startType {
	case mgr.StartAutomatic:
		if delayed {
			return models.StartDelayedAuto
		}
		return models.StartAuto
	case mgr.StartManual:
		return models.StartDemand
	case mgr.StartDisabled:
		return models.StartDisabled
	default:
		return ""
	}
}
