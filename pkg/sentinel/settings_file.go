// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// SettingsFormat selects the on-disk encoding of a FileSettingsStore
type SettingsFormat string

const (
	SettingsFormatJSON SettingsFormat = "json"
	SettingsFormatCBOR SettingsFormat = "cbor"
)

const settingsFilePrefix = ".extensionSettings"

// FileSettingsStore keeps one settings file per device in a directory.
// Files are replaced with a rename so readers never see a partial record.
type FileSettingsStore struct {
	dir    string
	format SettingsFormat
}

// NewFileSettingsStore creates a store rooted at dir, creating it if needed
func NewFileSettingsStore(dir string, format SettingsFormat) (*FileSettingsStore, error) {
	switch format {
	case "":
		format = SettingsFormatJSON
	case SettingsFormatJSON, SettingsFormatCBOR:
	default:
		return nil, fmt.Errorf("unsupported settings format: %s", format)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory %s: %w", dir, err)
	}

	return &FileSettingsStore{dir: dir, format: format}, nil
}

// Path returns the file holding the settings of a device
func (f *FileSettingsStore) Path(deviceID string) (string, error) {
	if deviceID == "" || strings.ContainsAny(deviceID, `/\`) || strings.Contains(deviceID, "..") {
		return "", fmt.Errorf("invalid device identifier %q", deviceID)
	}
	name := fmt.Sprintf("%s.%s.%s", settingsFilePrefix, deviceID, f.format)
	return filepath.Join(f.dir, name), nil
}

// Load reads the settings of a device
func (f *FileSettingsStore) Load(ctx context.Context, deviceID string) (ExtensionSettings, error) {
	var s ExtensionSettings

	path, err := f.Path(deviceID)
	if err != nil {
		return s, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, ErrSettingsNotFound
		}
		return s, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if f.format == SettingsFormatCBOR {
		err = cbor.Unmarshal(data, &s)
	} else {
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return ExtensionSettings{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes the settings of a device through a temporary file and a rename
func (f *FileSettingsStore) Save(ctx context.Context, deviceID string, settings ExtensionSettings) error {
	path, err := f.Path(deviceID)
	if err != nil {
		return err
	}

	var data []byte
	if f.format == SettingsFormatCBOR {
		data, err = cbor.Marshal(settings)
	} else {
		data, err = json.MarshalIndent(settings, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode settings for %s: %w", deviceID, err)
	}

	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Delete removes the settings file of a device
func (f *FileSettingsStore) Delete(ctx context.Context, deviceID string) error {
	path, err := f.Path(deviceID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrSettingsNotFound
		}
		return err
	}
	return nil
}
