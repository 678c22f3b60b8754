package procwatch

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// AppConfig is one [app:NAME] section's parsed, validated fields.
type AppConfig struct {
	Name               string
	Command            string
	StartDelaySeconds  int
	HeartbeatDelaySec  int
	HeartbeatInterval  int
}

// Config is the fully parsed and validated INI configuration: the
// [processWatchdog] section plus up to MaxApps [app:NAME] sections.
type Config struct {
	UDPPort      int
	RebootPolicy RebootPolicy
	Apps         []AppConfig
}

// LoadConfig reads and validates the INI file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(ErrConfigInvalid, "load %s: %v", path, err)
	}
	return configFromFile(f)
}

func configFromFile(f *ini.File) (*Config, error) {
	cfg := &Config{UDPPort: 12345}

	if sec, err := f.GetSection("processWatchdog"); err == nil {
		if key := sec.Key("udp_port"); key.String() != "" {
			port, err := key.Int()
			if err != nil || port < 1 || port > 65535 {
				return nil, errors.Wrapf(ErrConfigInvalid, "udp_port %q out of range", key.String())
			}
			cfg.UDPPort = port
		}

		if raw := sec.Key("periodic_reboot").String(); raw != "" && raw != "OFF" {
			policy, err := ParseRebootPolicy(raw)
			if err != nil {
				return nil, errors.Wrapf(ErrConfigInvalid, "periodic_reboot: %v", err)
			}
			cfg.RebootPolicy = policy
		}
	}

	for _, sec := range f.Sections() {
		name, ok := appSectionName(sec.Name())
		if !ok {
			continue
		}

		app, err := parseAppSection(name, sec)
		if err != nil {
			return nil, err
		}
		cfg.Apps = append(cfg.Apps, app)
	}

	if len(cfg.Apps) > MaxApps {
		return nil, errors.Wrapf(ErrConfigInvalid, "too many apps: %d exceeds the maximum of %d", len(cfg.Apps), MaxApps)
	}

	return cfg, nil
}

func appSectionName(section string) (string, bool) {
	const prefix = "app:"
	if len(section) <= len(prefix) || section[:len(prefix)] != prefix {
		return "", false
	}
	return section[len(prefix):], true
}

func parseAppSection(name string, sec *ini.Section) (AppConfig, error) {
	if len(name) > MaxAppNameLength {
		return AppConfig{}, errors.Wrapf(ErrConfigInvalid, "app name %q exceeds %d characters", name, MaxAppNameLength)
	}

	cmd := sec.Key("cmd").String()
	if cmd == "" {
		return AppConfig{}, errors.Wrapf(ErrConfigInvalid, "app %q missing cmd", name)
	}
	if len(cmd) > MaxAppCmdLength {
		return AppConfig{}, errors.Wrapf(ErrConfigInvalid, "app %q cmd exceeds %d characters", name, MaxAppCmdLength)
	}

	startDelay, err := intKeyOrZero(sec, "start_delay")
	if err != nil {
		return AppConfig{}, errors.Wrapf(ErrConfigInvalid, "app %q start_delay: %v", name, err)
	}
	heartbeatDelay, err := intKeyOrZero(sec, "heartbeat_delay")
	if err != nil {
		return AppConfig{}, errors.Wrapf(ErrConfigInvalid, "app %q heartbeat_delay: %v", name, err)
	}
	heartbeatInterval, err := intKeyOrZero(sec, "heartbeat_interval")
	if err != nil {
		return AppConfig{}, errors.Wrapf(ErrConfigInvalid, "app %q heartbeat_interval: %v", name, err)
	}

	return AppConfig{
		Name:              name,
		Command:           cmd,
		StartDelaySeconds: startDelay,
		HeartbeatDelaySec: heartbeatDelay,
		HeartbeatInterval: heartbeatInterval,
	}, nil
}

func intKeyOrZero(sec *ini.Section, key string) (int, error) {
	k := sec.Key(key)
	if k.String() == "" {
		return 0, nil
	}
	v, err := k.Int()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %q", k.String())
	}
	return v, nil
}

// NewManagedChild builds the runtime ManagedChild for an AppConfig entry.
func (a AppConfig) NewManagedChild() *ManagedChild {
	return &ManagedChild{
		Name:                  a.Name,
		Command:               a.Command,
		StartDelaySeconds:     a.StartDelaySeconds,
		HeartbeatDelaySec:     a.HeartbeatDelaySec,
		HeartbeatIntervalSec:  a.HeartbeatInterval,
		argv:                  tokenizeCmd(a.Command),
	}
}
