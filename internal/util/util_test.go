// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestWriteFileAtomic_CreatesParentsAndPerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state", "conversations.json")

	if err := WriteFileAtomic(path, []byte(`[]`), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Expected content %q, got %q", "[]", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 && os.PathSeparator == '/' {
		t.Errorf("Expected perm 0600, got %o", perm)
	}
}

func TestWriteFileAtomic_OverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kv.json")

	for _, content := range []string{"first", "second"} {
		if err := WriteFileAtomic(path, []byte(content), 0600); err != nil {
			t.Fatalf("WriteFileAtomic failed: %v", err)
		}
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("Expected %q, got %q", "second", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the target file, found %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
		{"日本語のテキスト", 5, "日本..."},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFitWidth(t *testing.T) {
	if got := FitWidth("short", 10); got != "short" {
		t.Errorf("FitWidth kept-as-is = %q", got)
	}

	got := FitWidth("你好世界你好世界", 9)
	if w := runewidth.StringWidth(got); w > 9 {
		t.Errorf("FitWidth result %q is %d columns, want <= 9", got, w)
	}

	if got := PadWidth("ab", 5); got != "ab   " {
		t.Errorf("PadWidth = %q, want %q", got, "ab   ")
	}
}
