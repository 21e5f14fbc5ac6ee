// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"errors"
	"path/filepath"
	"testing"
)

// storeFactories builds each Store implementation against a temp dir so
// the same contract suite runs over all backends.
func storeFactories(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			// Missing key
			if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
			}

			// Set and get
			if err := store.Set("settings", `{"fontSize":16}`); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			v, err := store.Get("settings")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if v != `{"fontSize":16}` {
				t.Errorf("Get = %q", v)
			}

			// Overwrite
			if err := store.Set("settings", "updated"); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			if v, _ := store.Get("settings"); v != "updated" {
				t.Errorf("after overwrite Get = %q", v)
			}

			// Keys with awkward characters survive the round trip
			awkward := "chat/abc:123 日本"
			if err := store.Set(awkward, "v"); err != nil {
				t.Fatalf("Set awkward key failed: %v", err)
			}
			keys, err := store.Keys()
			if err != nil {
				t.Fatalf("Keys failed: %v", err)
			}
			found := false
			for _, k := range keys {
				if k == awkward {
					found = true
				}
			}
			if !found {
				t.Errorf("Keys() missing %q, got %v", awkward, keys)
			}

			// Remove is idempotent
			if err := store.Remove("settings"); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			if err := store.Remove("settings"); err != nil {
				t.Errorf("second Remove failed: %v", err)
			}
			if _, err := store.Get("settings"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Remove err = %v, want ErrNotFound", err)
			}

			// Clear empties everything
			if err := store.Clear(); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			keys, _ = store.Keys()
			if len(keys) != 0 {
				t.Errorf("Keys after Clear = %v", keys)
			}
		})
	}
}

func TestMemoryStoreQuota(t *testing.T) {
	store := NewMemoryStore()
	store.MaxKeys = 2

	if err := store.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set("b", "2"); err != nil {
		t.Fatal(err)
	}

	// New key over the cap fails, overwriting an existing key does not.
	if err := store.Set("c", "3"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Set over quota err = %v, want ErrQuotaExceeded", err)
	}
	if err := store.Set("a", "updated"); err != nil {
		t.Errorf("overwrite under quota failed: %v", err)
	}
}
