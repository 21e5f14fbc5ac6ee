// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package keyring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	k, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const apiKey = "sk-or-v1-0123456789abcdef"
	if err := k.Set("  " + apiKey + "  "); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := k.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != apiKey {
		t.Errorf("Get = %q, want %q", got, apiKey)
	}
}

func TestKeyNotStoredInPlaintext(t *testing.T) {
	dir := t.TempDir()
	k, _ := New(dir)

	const apiKey = "sk-or-v1-verysecretvalue"
	if err := k.Set(apiKey); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, keyFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), apiKey) {
		t.Error("API key stored in plaintext")
	}
	if !strings.HasPrefix(string(data), encryptedPrefix) {
		t.Errorf("stored blob missing %q prefix", encryptedPrefix)
	}
}

func TestGetWithoutKey(t *testing.T) {
	k, _ := New(t.TempDir())
	if _, err := k.Get(); err != ErrNoKey {
		t.Errorf("Get on empty keyring = %v, want ErrNoKey", err)
	}
	if k.Exists() {
		t.Error("Exists reports true for empty keyring")
	}
}

func TestClear(t *testing.T) {
	k, _ := New(t.TempDir())
	k.Set("sk-or-v1-x")

	if err := k.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if k.Exists() {
		t.Error("key survives Clear")
	}
	if err := k.Clear(); err != nil {
		t.Errorf("second Clear errored: %v", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	k, _ := New(t.TempDir())
	if err := k.Set("   "); err == nil {
		t.Error("blank key accepted")
	}
}

func TestTamperedBlobFailsAuthentication(t *testing.T) {
	dir := t.TempDir()
	k, _ := New(dir)
	k.Set("sk-or-v1-tamperme")

	path := filepath.Join(dir, keyFile)
	data, _ := os.ReadFile(path)
	// Flip a character in the base64 payload.
	b := []byte(data)
	i := len(b) - 2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	os.WriteFile(path, b, 0600)

	if _, err := k.Get(); err == nil {
		t.Error("tampered blob decrypted successfully")
	}
}

func TestDistinctInstallsCannotShareBlobs(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	a, _ := New(dirA)
	b, _ := New(dirB)
	a.Set("sk-or-v1-installA")
	b.Set("sk-or-v1-installB") // materialize B's install secret

	// Copy A's sealed blob into B's keyring; B's secret must not open it.
	blob, _ := os.ReadFile(filepath.Join(dirA, keyFile))
	os.WriteFile(filepath.Join(dirB, keyFile), blob, 0600)

	if got, err := b.Get(); err == nil {
		t.Errorf("foreign blob opened under different install secret: %q", got)
	}
}
