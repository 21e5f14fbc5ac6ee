// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"testing"
)

func TestDefaults(t *testing.T) {
	s := Default()

	if s.DisplaySpeedMs != 20 {
		t.Errorf("DisplaySpeedMs = %d, want 20", s.DisplaySpeedMs)
	}
	if s.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", s.Temperature)
	}
	if s.MaxStoredConversations != 100 {
		t.Errorf("MaxStoredConversations = %d, want 100", s.MaxStoredConversations)
	}
	if s.TitleMaxChars != 20 || s.PreviewMaxChars != 30 {
		t.Errorf("truncation policy = %d/%d, want 20/30", s.TitleMaxChars, s.PreviewMaxChars)
	}
}

func TestClamp(t *testing.T) {
	s := &Settings{
		FontSize:               200,
		DisplaySpeedMs:         1,
		Temperature:            5.0,
		MaxContextMessages:     -3,
		MaxStoredConversations: -1,
	}
	s.Clamp()

	if s.FontSize != 32 {
		t.Errorf("FontSize = %d, want 32", s.FontSize)
	}
	if s.DisplaySpeedMs != 5 {
		t.Errorf("DisplaySpeedMs = %d, want 5", s.DisplaySpeedMs)
	}
	if s.Temperature != 2 {
		t.Errorf("Temperature = %v, want 2", s.Temperature)
	}
	if s.MaxContextMessages != 0 {
		t.Errorf("MaxContextMessages = %d, want 0", s.MaxContextMessages)
	}
	if s.MaxStoredConversations != 0 {
		t.Errorf("MaxStoredConversations = %d, want 0", s.MaxStoredConversations)
	}
	if s.Model == "" {
		t.Error("Clamp should fill an empty model")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := Default()
	s.DisplaySpeedMs = 35
	s.Temperature = 1.2
	s.Model = "openai/gpt-4o-mini"
	s.HasAPIKey = true

	doc, err := s.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	imported := Default()
	if err := imported.ImportJSON(doc); err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}

	if *imported != *s {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", imported, s)
	}
}

func TestImportIgnoresUnknownKeys(t *testing.T) {
	s := Default()
	doc := `{
		"displaySpeedMs": 40,
		"futureSetting": "whatever",
		"nested": {"x": 1}
	}`

	if err := s.ImportJSON([]byte(doc)); err != nil {
		t.Fatalf("ImportJSON failed on unknown keys: %v", err)
	}
	if s.DisplaySpeedMs != 40 {
		t.Errorf("DisplaySpeedMs = %d, want 40", s.DisplaySpeedMs)
	}
	// Untouched fields keep their previous values.
	if s.Model != Default().Model {
		t.Errorf("Model changed unexpectedly: %q", s.Model)
	}
}

func TestImportClampsValues(t *testing.T) {
	s := Default()
	if err := s.ImportJSON([]byte(`{"displaySpeedMs": 9999, "temperature": -1}`)); err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if s.DisplaySpeedMs != 50 {
		t.Errorf("DisplaySpeedMs = %d, want clamped 50", s.DisplaySpeedMs)
	}
	if s.Temperature != 0 {
		t.Errorf("Temperature = %v, want clamped 0", s.Temperature)
	}
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	s := Default()
	if err := s.ImportJSON([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed document")
	}
	if err := s.ImportJSON([]byte(`{"displaySpeedMs": "fast"}`)); err == nil {
		t.Error("expected error for wrong value type on a known key")
	}
}

func TestSettingsJSONTags(t *testing.T) {
	// The export document uses the localStorage-era key names; keep them
	// stable for old backups.
	doc, _ := Default().ExportJSON()
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"fontSize", "displaySpeedMs", "temperature", "maxContextMessages",
		"autoClearAfterDays", "maxStoredConversations", "model", "hasApiKey",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("export document missing key %q", key)
		}
	}
}
