package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"netpath-verifier/internal/model"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the decoder from a file extension. Anything that is
// not YAML is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseInvariants decodes an ordered list of invariant records.
func ParseInvariants(r io.Reader, format Format) ([]model.InvariantSpec, error) {
	var specs []model.InvariantSpec
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&specs); err != nil {
			return nil, fmt.Errorf("failed to decode invariants: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&specs); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode invariants: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported invariant format %q", format)
	}
	return specs, nil
}
