package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads, decodes and compiles the script at path. Relative body_file
// references resolve against the script's directory.
func Load(path string) (*Script, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("load script: not a regular file: %s", clean)
	}
	// #nosec G304 -- script path is provided intentionally by the operator
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	s, err := Parse(data, filepath.Dir(clean))
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", clean, err)
	}
	return s, nil
}

// Parse decodes a YAML script and compiles it. Unknown keys are rejected so
// typos in recorded scripts surface at load time.
func Parse(data []byte, baseDir string) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}
	s.baseDir = baseDir
	if err := s.Compile(); err != nil {
		return nil, err
	}
	return &s, nil
}
