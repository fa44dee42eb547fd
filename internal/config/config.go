// Package config persists the routing state a user built interactively:
// which outputs are active, how each is routed, and the patch-view
// camera position, so the next launch reopens the same session. It follows
// the same Default/Load/Save/Path shape as the teacher's client-side
// config package, stored at the same os.UserConfigDir() root, adapted to
// the shape spec.md §6 describes.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// configVersion is bumped whenever the persisted shape changes
// incompatibly. Load rejects a file whose version differs from it.
const configVersion = 1

// Config is the full persisted routing session.
type Config struct {
	Version       int                      `json:"version"`
	IOBufferSize  int                      `json:"io_buffer_size"`
	OutputRouting map[string]OutputRouting `json:"output_routings"`
	Sends         []SendConfig             `json:"sends"`
	Master        MasterConfig             `json:"master"`
	PatchView     PatchViewConfig          `json:"patch_view"`
	ActiveOutputs []string                 `json:"active_outputs"`
}

// OutputRouting is the saved per-device-name set of sink ports and their
// gains, keyed by output device name rather than by volatile NodeHandle so
// a config survives a full process restart.
type OutputRouting struct {
	ChannelOffset int       `json:"channel_offset"`
	ChannelCount  int       `json:"channel_count"`
	PortGains     []float32 `json:"port_gains"`
}

// SendConfig is one saved source-to-bus-or-sink edge.
type SendConfig struct {
	SourceLabel string  `json:"source_label"`
	TargetLabel string  `json:"target_label"`
	TargetPort  int     `json:"target_port"`
	Gain        float32 `json:"gain"`
	Muted       bool    `json:"muted"`
}

// MasterConfig is the saved master bus gain/mute state.
type MasterConfig struct {
	Gain  float32 `json:"gain"`
	Muted bool    `json:"muted"`
}

// PatchViewConfig is the saved camera position of the patch-bay UI. The UI
// itself is out of scope; this is just the state it would restore.
type PatchViewConfig struct {
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
	Zoom    float64 `json:"zoom"`
}

// Default returns a Config with an empty routing session and unity master.
func Default() Config {
	return Config{
		Version:       configVersion,
		IOBufferSize:  256,
		OutputRouting: make(map[string]OutputRouting),
		Master:        MasterConfig{Gain: 1.0, Muted: false},
		PatchView:     PatchViewConfig{Zoom: 1.0},
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mixcore", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing,
// unreadable, or from an incompatible version, the default config is
// returned, never an error — mirroring the teacher's client config loader.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	if cfg.Version != configVersion {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
