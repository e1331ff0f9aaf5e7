package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/teleop"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "armlink.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Addr() != "192.168.4.1:8080" {
		t.Errorf("Addr = %s", cfg.Addr())
	}
	if cfg.Servos.HomeDeg != 110 {
		t.Errorf("HomeDeg = %f, want 110", cfg.Servos.HomeDeg)
	}
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armlink.json")
	data := `{"rig": {"host": "10.0.0.7", "port": 3333}, "teleop": {"policy": "independent", "homing_arm": "left"}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Addr() != "10.0.0.7:3333" {
		t.Errorf("Addr = %s", cfg.Addr())
	}
	if cfg.Rig.Retry != "bounded" {
		t.Errorf("Retry = %q, want default bounded", cfg.Rig.Retry)
	}
	if cfg.Teleop.Thresholds != gesture.DefaultThresholds() {
		t.Errorf("thresholds = %+v, want defaults", cfg.Teleop.Thresholds)
	}

	ac, err := cfg.ArbiterConfig()
	if err != nil {
		t.Fatalf("ArbiterConfig: %v", err)
	}
	if ac.Policy != teleop.Independent || ac.HomingArm != gesture.LeftArm {
		t.Errorf("arbiter config = %+v", ac)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":     `{"rig": `,
		"port":       `{"rig": {"port": 70000}}`,
		"retry":      `{"rig": {"retry": "forever"}}`,
		"policy":     `{"teleop": {"policy": "both"}}`,
		"homing arm": `{"teleop": {"homing_arm": "tail"}}`,
		"tokens":     `{"tokens": {"home": "1"}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "armlink.json")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armlink.json")
	cfg := Default()
	cfg.Rig.Host = "rig.local"
	cfg.Teleop.Mirror = true
	cfg.Servos.Port = "/dev/ttyUSB0"

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	if !Exists(path) {
		t.Fatal("config file not written")
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.Rig.Host != "rig.local" || !got.Teleop.Mirror || got.Servos.Port != "/dev/ttyUSB0" {
		t.Errorf("loaded %+v", got)
	}
	if !got.Classifier().Mirror {
		t.Error("classifier lost mirror flag")
	}
}

func TestTeleopConfig(t *testing.T) {
	cfg := Default()
	cfg.Rig.Retry = "persistent"

	tc, err := cfg.TeleopConfig()
	if err != nil {
		t.Fatalf("TeleopConfig: %v", err)
	}
	if !tc.Link.Retry.Auto || tc.Link.Addr != cfg.Addr() {
		t.Errorf("link config = %+v", tc.Link)
	}
	if tc.Codec == nil {
		t.Error("no codec")
	}
}
