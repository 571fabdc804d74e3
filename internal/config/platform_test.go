package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPlatformEmptyPathReturnsDefault(t *testing.T) {
	p, err := LoadPlatform("")
	if err != nil {
		t.Fatalf("LoadPlatform: %v", err)
	}
	if p.Name != "xiaohongshu" || p.HomeURL == "" {
		t.Errorf("default platform = %+v", p)
	}
	if !strings.Contains(p.Scripts.LoginProbe, "__OBSERVE_MS__") {
		t.Error("default login probe must carry the observation placeholder")
	}
	if p.Scripts.ChallengeDetect == "" || p.Scripts.LoginFailDetect == "" {
		t.Error("default platform must ship detection scripts")
	}
}

func TestLoadPlatformFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.yaml")
	profile := `name: testnet
home_url: https://example.com/home
scripts:
  login_probe: "probe(__OBSERVE_MS__)"
  challenge_detect: "challenge()"
  login_fail_detect: "fail()"
`
	if err := os.WriteFile(path, []byte(profile), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPlatform(path)
	if err != nil {
		t.Fatalf("LoadPlatform: %v", err)
	}
	if p.Name != "testnet" || p.HomeURL != "https://example.com/home" {
		t.Errorf("platform = %+v", p)
	}
	if p.Scripts.LoginProbe != "probe(__OBSERVE_MS__)" {
		t.Errorf("login probe = %q", p.Scripts.LoginProbe)
	}
}

func TestLoadPlatformRequiresHomeURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.yaml")
	if err := os.WriteFile(path, []byte("name: incomplete\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlatform(path); err == nil {
		t.Error("profile without home_url should be rejected")
	}
}

func TestLoadPlatformMissingFile(t *testing.T) {
	if _, err := LoadPlatform(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing profile file should error")
	}
}

func TestLoadPlatformBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlatform(path); err == nil {
		t.Error("unparsable profile should error")
	}
}
