package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a request document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrEmptyDocument is returned when a request document holds no requests
var ErrEmptyDocument = errors.New("request document is empty")

// FormatFromPath picks the format from a file extension. Anything that is
// not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// DecodeRequests reads one formulation request or a list of them
func DecodeRequests(data []byte, format Format) ([]FormulationRequest, error) {
	if format == FormatJSON {
		return decodeJSON(data)
	}
	return decodeYAML(data)
}

func decodeJSON(data []byte) ([]FormulationRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyDocument
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var reqs []FormulationRequest
		if err := dec.Decode(&reqs); err != nil {
			return nil, fmt.Errorf("invalid JSON request list: %w", err)
		}
		if len(reqs) == 0 {
			return nil, ErrEmptyDocument
		}
		return reqs, nil
	}

	var req FormulationRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON request: %w", err)
	}
	return []FormulationRequest{req}, nil
}

func decodeYAML(data []byte) ([]FormulationRequest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML request: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, ErrEmptyDocument
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var reqs []FormulationRequest
		if err := root.Decode(&reqs); err != nil {
			return nil, fmt.Errorf("invalid YAML request list: %w", err)
		}
		if len(reqs) == 0 {
			return nil, ErrEmptyDocument
		}
		return reqs, nil
	case yaml.MappingNode:
		var req FormulationRequest
		if err := root.Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid YAML request: %w", err)
		}
		return []FormulationRequest{req}, nil
	default:
		return nil, fmt.Errorf("request document must be a mapping or a list, got %s", root.Tag)
	}
}
