// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides settings loading and management for orchat.
//
// Supports both TOML and JSON configuration formats with sensible
// defaults, environment variable overrides, and validation clamps.
//
// Configuration file locations (in order of precedence):
//   - ~/.orchat/config.toml
//   - ~/.orchat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings holds every user-tunable option. The JSON tags double as the
// export/import document shape, so renaming a tag is a breaking change
// for saved settings files.
type Settings struct {
	// FontSize is the preferred glyph size in px for exported HTML
	// transcripts (the terminal renders at its own size).
	FontSize int `toml:"font_size" json:"fontSize"`

	// DisplaySpeedMs is the typewriter delay per reveal tick.
	// Valid range 5-50ms; values outside are clamped.
	DisplaySpeedMs int `toml:"display_speed_ms" json:"displaySpeedMs"`

	// Temperature is the sampling temperature sent to the model (0-2).
	Temperature float64 `toml:"temperature" json:"temperature"`

	// MaxContextMessages bounds the history window sent with each
	// request. 0 means unlimited.
	MaxContextMessages int `toml:"max_context_messages" json:"maxContextMessages"`

	// AutoClearAfterDays prunes conversations untouched for this many
	// days at startup. 0 means never.
	AutoClearAfterDays int `toml:"auto_clear_after_days" json:"autoClearAfterDays"`

	// MaxStoredConversations caps the conversation index. 0 means
	// unlimited; oldest conversations beyond the cap are evicted.
	MaxStoredConversations int `toml:"max_stored_conversations" json:"maxStoredConversations"`

	// Model is the OpenRouter model identifier.
	Model string `toml:"model" json:"model"`

	// HasAPIKey records whether a key has been stored. The key itself
	// never lives in the settings document.
	HasAPIKey bool `toml:"has_api_key" json:"hasApiKey"`

	// TitleMaxChars / PreviewMaxChars control sidebar truncation.
	// The source clients disagreed on the exact lengths, so this is a
	// policy knob rather than a constant.
	TitleMaxChars   int `toml:"title_max_chars" json:"titleMaxChars"`
	PreviewMaxChars int `toml:"preview_max_chars" json:"previewMaxChars"`
}

// Default returns Settings with sensible default values.
func Default() *Settings {
	return &Settings{
		FontSize:               16,
		DisplaySpeedMs:         20,
		Temperature:            0.7,
		MaxContextMessages:     10,
		AutoClearAfterDays:     0,
		MaxStoredConversations: 100,
		Model:                  "google/gemini-2.0-flash-lite-preview-02-05:free",
		HasAPIKey:              false,
		TitleMaxChars:          20,
		PreviewMaxChars:        30,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Clamp forces every field into its valid range. Out-of-range values
// are corrected, not rejected, so a hand-edited config file never
// prevents startup.
func (s *Settings) Clamp() {
	if s.FontSize < 10 {
		s.FontSize = 10
	}
	if s.FontSize > 32 {
		s.FontSize = 32
	}
	if s.DisplaySpeedMs < 5 {
		s.DisplaySpeedMs = 5
	}
	if s.DisplaySpeedMs > 50 {
		s.DisplaySpeedMs = 50
	}
	if s.Temperature < 0 {
		s.Temperature = 0
	}
	if s.Temperature > 2 {
		s.Temperature = 2
	}
	if s.MaxContextMessages < 0 {
		s.MaxContextMessages = 0
	}
	if s.AutoClearAfterDays < 0 {
		s.AutoClearAfterDays = 0
	}
	if s.MaxStoredConversations < 0 {
		s.MaxStoredConversations = 0
	}
	if s.TitleMaxChars <= 0 {
		s.TitleMaxChars = 20
	}
	if s.PreviewMaxChars <= 0 {
		s.PreviewMaxChars = 30
	}
	if s.Model == "" {
		s.Model = Default().Model
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the orchat configuration directory (~/.orchat).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".orchat"), nil
}

// PathTOML returns the TOML config file path.
func PathTOML() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// PathJSON returns the JSON config file path.
func PathJSON() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads settings from disk, applies env overrides, and clamps.
// Missing files are not an error: defaults are returned.
func Load() (*Settings, error) {
	s := Default()
	var loadErr error

	if path, err := PathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, s); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				s.applyEnvOverrides()
				s.Clamp()
				return s, nil
			}
		}
	}

	if path, err := PathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			data, readErr := os.ReadFile(path)
			if readErr == nil {
				if err := json.Unmarshal(data, s); err != nil {
					loadErr = fmt.Errorf("failed to load JSON config: %w", err)
				} else {
					s.applyEnvOverrides()
					s.Clamp()
					return s, nil
				}
			}
		}
	}

	s.applyEnvOverrides()
	s.Clamp()
	return s, loadErr
}

// applyEnvOverrides applies ORCHAT_* environment variables on top of
// whatever the config file provided.
func (s *Settings) applyEnvOverrides() {
	if model := os.Getenv("ORCHAT_MODEL"); model != "" {
		s.Model = model
	}
	if speed := os.Getenv("ORCHAT_DISPLAY_SPEED_MS"); speed != "" {
		if v, err := strconv.Atoi(speed); err == nil {
			s.DisplaySpeedMs = v
		}
	}
	if temp := os.Getenv("ORCHAT_TEMPERATURE"); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			s.Temperature = v
		}
	}
	if n := os.Getenv("ORCHAT_MAX_CONTEXT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			s.MaxContextMessages = v
		}
	}
}

// Save writes settings to the TOML config file.
func Save(s *Settings) error {
	path, err := PathTOML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(s)
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// ExportJSON serializes the settings object as an indented JSON
// document suitable for backup and transfer.
func (s *Settings) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ImportJSON merges a settings document into s. Unknown keys are
// ignored rather than failing the whole import; recognized keys are
// validated by clamping after the merge.
func (s *Settings) ImportJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid settings document: %w", err)
	}

	// Re-marshal only the recognized keys so stray fields in the
	// document cannot smuggle values past validation.
	known := map[string]bool{
		"fontSize": true, "displaySpeedMs": true, "temperature": true,
		"maxContextMessages": true, "autoClearAfterDays": true,
		"maxStoredConversations": true, "model": true, "hasApiKey": true,
		"titleMaxChars": true, "previewMaxChars": true,
	}
	filtered := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if known[k] {
			filtered[k] = v
		}
	}

	merged, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(merged, s); err != nil {
		return fmt.Errorf("invalid settings value: %w", err)
	}

	s.Clamp()
	return nil
}

// =============================================================================
// SINGLETON (THREAD-SAFE)
// =============================================================================

var (
	globalSettings     *Settings
	globalSettingsOnce sync.Once
	globalSettingsMu   sync.RWMutex
)

// Global returns the global settings instance, loading on first access.
func Global() *Settings {
	globalSettingsOnce.Do(func() {
		s, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		globalSettings = s
	})

	globalSettingsMu.RLock()
	defer globalSettingsMu.RUnlock()
	return globalSettings
}

// SetGlobal replaces the global settings instance. Thread-safe.
func SetGlobal(s *Settings) {
	globalSettingsMu.Lock()
	defer globalSettingsMu.Unlock()
	globalSettings = s
}

// ReloadGlobal re-reads settings from disk into the global instance.
func ReloadGlobal() error {
	s, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(s)
	return nil
}
