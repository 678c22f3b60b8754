package procwatch

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(body), 0640); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigBasic(t *testing.T) {
	path := writeConfig(t, `
[processWatchdog]
udp_port = 12345
periodic_reboot = 03:30

[app:Bot]
start_delay = 10
heartbeat_delay = 60
heartbeat_interval = 20
cmd = /usr/bin/python bot.py
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.UDPPort != 12345 {
		t.Errorf("expected udp_port 12345, got %d", cfg.UDPPort)
	}
	if cfg.RebootPolicy.Mode != RebootDailyTime || cfg.RebootPolicy.DailyHour != 3 {
		t.Errorf("unexpected reboot policy: %+v", cfg.RebootPolicy)
	}
	if len(cfg.Apps) != 1 || cfg.Apps[0].Name != "Bot" {
		t.Fatalf("unexpected apps: %+v", cfg.Apps)
	}
	if cfg.Apps[0].HeartbeatInterval != 20 {
		t.Errorf("expected heartbeat_interval 20, got %d", cfg.Apps[0].HeartbeatInterval)
	}
}

func TestLoadConfigRejectsTooManyApps(t *testing.T) {
	body := "[processWatchdog]\nudp_port = 12345\n"
	for i := 0; i < MaxApps+1; i++ {
		body += "\n[app:App" + string(rune('A'+i)) + "]\ncmd = /bin/true\n"
	}

	path := writeConfig(t, body)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for exceeding MaxApps")
	}
}

func TestLoadConfigRejectsMissingCmd(t *testing.T) {
	path := writeConfig(t, "[app:Bot]\nstart_delay = 1\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for a missing cmd")
	}
}

func TestLoadConfigRejectsBadUDPPort(t *testing.T) {
	path := writeConfig(t, "[processWatchdog]\nudp_port = 70000\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for an out-of-range udp_port")
	}
}

func TestLoadConfigDefaultsUDPPort(t *testing.T) {
	path := writeConfig(t, "[app:Bot]\ncmd = /bin/true\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UDPPort != 12345 {
		t.Errorf("expected default udp_port 12345, got %d", cfg.UDPPort)
	}
}

func TestNewManagedChildTokenizesCommand(t *testing.T) {
	app := AppConfig{Name: "Bot", Command: "/usr/bin/python bot.py --flag"}
	child := app.NewManagedChild()

	argv := child.Argv()
	if len(argv) != 3 || argv[0] != "/usr/bin/python" {
		t.Fatalf("unexpected argv: %+v", argv)
	}
}
