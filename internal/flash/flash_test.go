// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flash

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoad(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "flash.yaml")}
	regs := map[string]uint16{"BUF_LEN": 16, "WATER_INT_CONFIG": 8}

	if err := f.Save(regs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["BUF_LEN"] != 16 || got["WATER_INT_CONFIG"] != 8 {
		t.Errorf("loaded %v", got)
	}

	b, _ := os.ReadFile(f.Path)
	if !strings.Contains(string(b), "BUF_LEN: 16") {
		t.Errorf("file does not hold readable YAML:\n%s", b)
	}
}

func TestLoadMissing(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "none.yaml")}
	if _, err := f.Load(); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadRejectsTamperedImage(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "flash.yaml")}
	if err := f.Save(map[string]uint16{"BUF_LEN": 16}); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(f.Path)
	b = []byte(strings.Replace(string(b), "BUF_LEN: 16", "BUF_LEN: 17", 1))
	os.WriteFile(f.Path, b, 0o644)

	if _, err := f.Load(); !errors.Is(err, ErrSignature) {
		t.Errorf("err = %v, want ErrSignature", err)
	}
}
