// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"log"
	"path/filepath"
)

// Open returns the default persistent backend rooted at dir: SQLite,
// with a fallback to one-file-per-key storage when the database cannot
// be opened (read-only volume, exotic filesystem).
func Open(dir string) (Store, error) {
	db, err := NewSQLiteStore(filepath.Join(dir, "conversations.db"))
	if err == nil {
		return db, nil
	}
	log.Printf("kv: sqlite unavailable (%v), using file store", err)
	return NewFileStore(filepath.Join(dir, "conversations"))
}
