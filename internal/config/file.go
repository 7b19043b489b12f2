package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileName is the optional config file looked up beside the launcher.
const FileName = "launcher.yaml"

// LoadFile merges settings from a YAML file into cfg. A missing file is
// not an error; a malformed one is. Values set in the file become the new
// defaults, and command-line flags still override them.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	// KnownFields rejects typos instead of silently ignoring them.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
