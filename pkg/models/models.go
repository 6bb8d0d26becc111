package models

import "time"

// Startup types accepted by NSSM's Start parameter.
const (
	StartAuto        = "SERVICE_AUTO_START"
	StartDelayedAuto = "SERVICE_DELAYED_AUTO_START"
	StartDemand      = "SERVICE_DEMAND_START"
	StartDisabled    = "SERVICE_DISABLED"
)

// Service types accepted by NSSM's Type parameter.
const (
	TypeOwnProcess         = "SERVICE_WIN32_OWN_PROCESS"
	TypeInteractiveProcess = "SERVICE_INTERACTIVE_PROCESS"
)

// Process priority classes.
const (
	PriorityRealtime    = "REALTIME_PRIORITY_CLASS"
	PriorityHigh        = "HIGH_PRIORITY_CLASS"
	PriorityAboveNormal = "ABOVE_NORMAL_PRIORITY_CLASS"
	PriorityNormal      = "NORMAL_PRIORITY_CLASS"
	PriorityBelowNormal = "BELOW_NORMAL_PRIORITY_CLASS"
	PriorityIdle        = "IDLE_PRIORITY_CLASS"
)

// Default exit actions (AppExit Default <action>).
const (
	ExitRestart = "Restart"
	ExitIgnore  = "Ignore"
	ExitExit    = "Exit"
	ExitSuicide = "Suicide"
)

// Built-in service accounts.
const (
	AccountLocalSystem    = "LocalSystem"
	AccountLocalService   = "LocalService"
	AccountNetworkService = "NetworkService"
)

// Service states reported by the SCM, normalized.
const (
	StateRunning  = "running"
	StateStopped  = "stopped"
	StatePaused   = "paused"
	StateStarting = "starting"
	StateStopping = "stopping"
	StateUnknown  = "unknown"
)

// ServiceConfig describes how a service is installed and run through NSSM.
type ServiceConfig struct {
	ServiceName     string `json:"serviceName" yaml:"serviceName"`
	DisplayName     string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	ApplicationPath string `json:"applicationPath" yaml:"applicationPath"`
	Arguments       string `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	AppDirectory    string `json:"appDirectory,omitempty" yaml:"appDirectory,omitempty"`
	AppExit         string `json:"appExit,omitempty" yaml:"appExit,omitempty"`

	ObjectName string `json:"objectName,omitempty" yaml:"objectName,omitempty"`
	// Password is only sent to NSSM, never persisted.
	Password string `json:"-" yaml:"-"`

	Start           string            `json:"start,omitempty" yaml:"start,omitempty"`
	Type            string            `json:"type,omitempty" yaml:"type,omitempty"`
	Dependencies    []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ProcessPriority string            `json:"processPriority,omitempty" yaml:"processPriority,omitempty"`
	StdoutPath      string            `json:"stdoutPath,omitempty" yaml:"stdoutPath,omitempty"`
	StderrPath      string            `json:"stderrPath,omitempty" yaml:"stderrPath,omitempty"`
	EnvVariables    map[string]string `json:"envVariables,omitempty" yaml:"envVariables,omitempty"`

	KillConsoleDelay int  `json:"killConsoleDelay" yaml:"killConsoleDelay"`
	KillWindowDelay  int  `json:"killWindowDelay" yaml:"killWindowDelay"`
	KillThreadsDelay int  `json:"killThreadsDelay" yaml:"killThreadsDelay"`
	KillProcessTree  bool `json:"killProcessTree" yaml:"killProcessTree"`

	ThrottleDelay int `json:"throttleDelay" yaml:"throttleDelay"`
	RestartDelay  int `json:"restartDelay" yaml:"restartDelay"`

	RotateFiles    bool `json:"rotateFiles" yaml:"rotateFiles"`
	RotateOnline   bool `json:"rotateOnline" yaml:"rotateOnline"`
	RotateSeconds  int  `json:"rotateSeconds" yaml:"rotateSeconds"`
	RotateBytesLow int  `json:"rotateBytesLow" yaml:"rotateBytesLow"`

	HookShareOutputHandles bool              `json:"hookShareOutputHandles" yaml:"hookShareOutputHandles"`
	Hooks                  map[string]string `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// NewServiceConfig returns a config for name with NSSM's defaults filled in.
func NewServiceConfig(name string) ServiceConfig {
	return ServiceConfig{ServiceName: name}.WithDefaults()
}

// WithDefaults returns a copy with empty enum fields set to NSSM's defaults.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	if c.AppExit == "" {
		c.AppExit = ExitRestart
	}
	if c.ObjectName == "" {
		c.ObjectName = AccountLocalSystem
	}
	if c.Start == "" {
		c.Start = StartAuto
	}
	if c.Type == "" {
		c.Type = TypeOwnProcess
	}
	if c.ProcessPriority == "" {
		c.ProcessPriority = PriorityNormal
	}
	return c
}

// Clone returns a deep copy.
func (c ServiceConfig) Clone() ServiceConfig {
	out := c
	if c.Dependencies != nil {
		out.Dependencies = append([]string(nil), c.Dependencies...)
	}
	if c.EnvVariables != nil {
		out.EnvVariables = make(map[string]string, len(c.EnvVariables))
		for k, v := range c.EnvVariables {
			out.EnvVariables[k] = v
		}
	}
	if c.Hooks != nil {
		out.Hooks = make(map[string]string, len(c.Hooks))
		for k, v := range c.Hooks {
			out.Hooks[k] = v
		}
	}
	return out
}

// ServiceInfo is a row of the service list.
type ServiceInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	State       string `json:"state"`
	StartType   string `json:"startType,omitempty"`
	PID         uint32 `json:"pid,omitempty"`
	IsNSSM      bool   `json:"isNssm"`
	BinaryPath  string `json:"binaryPath,omitempty"`
}

// IsRunning reports whether the service is in the running state.
func (s ServiceInfo) IsRunning() bool {
	return s.State == StateRunning
}

// ServiceStatus is a point-in-time resource snapshot for one service.
// A snapshot with NoData set carries only Service, State, Reason and Timestamp.
type ServiceStatus struct {
	Service            string    `json:"service"`
	State              string    `json:"state"`
	PID                uint32    `json:"pid,omitempty"`
	CPUPercent         float64   `json:"cpuPercent"`
	MemoryPercent      float64   `json:"memoryPercent"`
	MemoryMB           float64   `json:"memoryMb"`
	IOReadBytesPerSec  float64   `json:"ioReadBytesPerSec"`
	IOWriteBytesPerSec float64   `json:"ioWriteBytesPerSec"`
	UptimeSeconds      int64     `json:"uptimeSeconds,omitempty"`
	Restarts           int       `json:"restarts"`
	NoData             bool      `json:"noData,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Template is a named, persisted ServiceConfig preset.
type Template struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Config      ServiceConfig `json:"config" yaml:"config"`
	CreatedAt   time.Time     `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt" yaml:"updatedAt"`
}
