// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"encoding/base32"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/orchat/internal/util"
)

// FileStore persists one file per key under a base directory. Values
// are written atomically so a crash mid-write never corrupts a key.
type FileStore struct {
	// BaseDir is the directory holding key files.
	BaseDir string
}

const fileExt = ".kv"

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// encodeKey makes an arbitrary key filesystem-safe. Base32 (no padding)
// keeps the mapping reversible for Keys().
func encodeKey(key string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(key))
}

func decodeKey(name string) (string, bool) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.BaseDir, encodeKey(key)+fileExt)
}

func (f *FileStore) Get(key string) (string, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

func (f *FileStore) Set(key, value string) error {
	err := util.AtomicWriteFile(f.path(key), []byte(value), 0644)
	if err != nil && isNoSpace(err) {
		return ErrQuotaExceeded
	}
	return err
}

func (f *FileStore) Remove(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileStore) Clear() error {
	entries, err := os.ReadDir(f.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(f.BaseDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		if key, ok := decodeKey(strings.TrimSuffix(entry.Name(), fileExt)); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// isNoSpace reports whether err looks like a disk-full condition.
func isNoSpace(err error) bool {
	return strings.Contains(err.Error(), "no space left on device")
}
