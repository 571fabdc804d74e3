package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds process-level configuration, loaded from XUANCE_* env vars.
type Settings struct {
	DataPath        string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath    string `envconfig:"DATABASE_PATH" default:""`
	LogPath         string `envconfig:"LOG_PATH" default:""`
	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8700"`
	ControlEndpoint string `envconfig:"CONTROL_ENDPOINT" default:"ws://127.0.0.1:9100/conn"`
	PlatformProfile string `envconfig:"PLATFORM_PROFILE" default:""`

	CaptureInterval        time.Duration `envconfig:"CAPTURE_INTERVAL" default:"30s"`
	LoginObservationWindow time.Duration `envconfig:"LOGIN_OBSERVATION_WINDOW" default:"5s"`
	EscalationWindow       time.Duration `envconfig:"ESCALATION_WINDOW" default:"30s"`

	// ProbeAddr is dialed to distinguish "platform unreachable" from
	// "network down" when reconnection escalates to the operator.
	ProbeAddr string `envconfig:"PROBE_ADDR" default:"1.1.1.1:443"`

	Sandbox bool `envconfig:"SANDBOX" default:"false"`
}

// Load reads settings from the environment and fills derived defaults.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("XUANCE", &s); err != nil {
		return s, fmt.Errorf("load config: %w", err)
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataPath, "xuance.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "xuance.log")
	}
	return s, nil
}
