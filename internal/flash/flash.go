// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package flash keeps the non-volatile copy of the configuration
// registers as a YAML file.
package flash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
)

// ErrSignature is returned when a stored image does not match its
// signature.
var ErrSignature = errors.New("flash: signature mismatch")

const imageVersion = 1

// Image is the on-disk layout.
type Image struct {
	Version   int               `yaml:"version"`
	Saved     time.Time         `yaml:"saved"`
	Signature uint16            `yaml:"signature"`
	Registers map[string]uint16 `yaml:"registers"`
}

// File stores images at Path.
type File struct {
	Path string
}

// Load reads and checks the image. A missing file returns an error
// matching fs.ErrNotExist.
func (f File) Load() (map[string]uint16, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var img Image
	if err := yaml.Unmarshal(b, &img); err != nil {
		return nil, fmt.Errorf("flash: parse %s: %w", f.Path, err)
	}
	if img.Version != imageVersion {
		return nil, fmt.Errorf("flash: %s: unsupported version %d", f.Path, img.Version)
	}
	if sig := regmap.Signature(img.Registers); sig != img.Signature {
		return nil, fmt.Errorf("%w: stored 0x%04X, computed 0x%04X", ErrSignature, img.Signature, sig)
	}
	return img.Registers, nil
}

// Save writes the image through a temporary file so a crash never leaves
// a half-written one behind.
func (f File) Save(regs map[string]uint16) error {
	img := Image{
		Version:   imageVersion,
		Saved:     time.Now().UTC(),
		Signature: regmap.Signature(regs),
		Registers: regs,
	}
	b, err := yaml.Marshal(&img)
	if err != nil {
		return fmt.Errorf("flash: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".flash-*.yaml")
	if err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("flash: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flash: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	return nil
}
