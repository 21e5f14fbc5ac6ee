// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s := Default()
	s.DisplaySpeedMs = 35
	s.Model = "openai/gpt-4o-mini"
	s.TitleMaxChars = 27

	require.NoError(t, Save(s))

	path, err := PathTOML()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm(), "config file should not be world readable")

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, s, loaded)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default(), loaded)
}

func TestEnvOverridesApplyOnLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ORCHAT_MODEL", "meta-llama/llama-3-8b")
	t.Setenv("ORCHAT_DISPLAY_SPEED_MS", "500") // clamps to 50

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, "meta-llama/llama-3-8b", loaded.Model)
	require.Equal(t, 50, loaded.DisplaySpeedMs)
}
