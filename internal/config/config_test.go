package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Port       string   `toml:"server.port" env:"SERVER_PORT"`
	Driver     string   `toml:"camera.driver" env:"CAMERA_DRIVER"`
	MaxWidth   int      `toml:"camera.max_width" env:"CAMERA_MAX_WIDTH"`
	AuthEnable bool     `toml:"auth.enabled" env:"AUTH_ENABLED"`
	Devices    []string `toml:"camera.allow" env:"CAMERA_ALLOW"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":9000"

[camera]
driver = "sim"
max_width = 1280
allow = ["0", "2"]

[auth]
enabled = true
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != ":9000" {
		t.Errorf("Port = %q", opts.Port)
	}
	if opts.Driver != "sim" {
		t.Errorf("Driver = %q", opts.Driver)
	}
	if opts.MaxWidth != 1280 {
		t.Errorf("MaxWidth = %d", opts.MaxWidth)
	}
	if !opts.AuthEnable {
		t.Error("AuthEnable should be true")
	}
	if !reflect.DeepEqual(opts.Devices, []string{"0", "2"}) {
		t.Errorf("Devices = %v", opts.Devices)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, `
[camera]
driver = "v4l2"
max_width = 1920
`)
	t.Setenv("BOOTHCAM_CAMERA_DRIVER", "sim")
	t.Setenv("BOOTHCAM_CAMERA_ALLOW", " 1 , 3 ")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Driver != "sim" {
		t.Errorf("Driver = %q, want env override", opts.Driver)
	}
	if opts.MaxWidth != 1920 {
		t.Errorf("MaxWidth = %d, want TOML value", opts.MaxWidth)
	}
	if !reflect.DeepEqual(opts.Devices, []string{"1", "3"}) {
		t.Errorf("Devices = %v", opts.Devices)
	}
}

func TestLoadConfigSkipsChangedFlags(t *testing.T) {
	path := writeConfig(t, "[camera]\ndriver = \"v4l2\"\n")
	t.Setenv("BOOTHCAM_SERVER_PORT", ":7000")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "")
	cmd.Flags().StringVar(&opts.Port, "port", "", "")
	if err := cmd.Flags().Parse([]string{"--driver", "sim", "--port", ":8000"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Driver != "sim" {
		t.Errorf("Driver = %q, CLI flag should win over TOML", opts.Driver)
	}
	if opts.Port != ":8000" {
		t.Errorf("Port = %q, CLI flag should win over env", opts.Port)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "missing.toml")}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, "[camera\ninvalid toml syntax\n")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Fatal("expected error for non-pointer options")
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{"value": "nested_value"},
			"simple": "simple_value",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"level1.simple", "simple_value"},
		{"level1.level2.value", "nested_value"},
		{"nonexistent", nil},
		{"root.child", nil},
	}

	for _, tt := range tests {
		if result := getNestedValue(data, tt.path); result != tt.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}

func TestSetFieldValueConversions(t *testing.T) {
	type target struct {
		S string
		I int
	}
	s := &target{}
	v := reflect.ValueOf(s).Elem()

	setFieldValue(v.FieldByName("S"), int64(8090))
	if s.S != "8090" {
		t.Errorf("S = %q", s.S)
	}
	setFieldValue(v.FieldByName("I"), float64(85))
	if s.I != 85 {
		t.Errorf("I = %d", s.I)
	}
	setFieldValue(v.FieldByName("I"), "not a number")
	if s.I != 85 {
		t.Errorf("I changed on mismatched type: %d", s.I)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":            "port",
		"LoggingLevel":    "logging-level",
		"CaptureJPEGQual": "capture-j-p-e-g-qual",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"2s", 2 * time.Second},
		{"garbage", 5 * time.Second},
		{"-1s", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in, 5*time.Second); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
session = "debug"
driver = "error"
`)

	cfg, err := LoadLoggingConfig(path)
	if err != nil {
		t.Fatalf("LoadLoggingConfig failed: %v", err)
	}
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("global = %q/%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["session"] != "debug" || cfg.Modules["driver"] != "error" {
		t.Errorf("modules = %v", cfg.Modules)
	}
}

func TestLoadLoggingConfigDefaults(t *testing.T) {
	cfg, err := LoadLoggingConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("defaults = %+v", cfg)
	}

	if _, err := LoadLoggingConfig(writeConfig(t, "[logging\n")); err == nil {
		t.Error("expected parse error")
	}
}
