package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata describes the tensors of a bundled model. It lives next to the
// artifact as <name>.json.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// MetadataPath returns the sidecar path for a model artifact.
func MetadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

// LoadMetadata reads and validates a metadata file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if len(meta.InputShape) != 4 {
		return nil, fmt.Errorf("input shape must be NCHW, got %v", meta.InputShape)
	}
	if len(meta.OutputShape) == 0 {
		return nil, fmt.Errorf("output shape is empty")
	}
	if len(meta.Classes) == 0 {
		return nil, fmt.Errorf("metadata lists no classes")
	}
	if meta.ImageSize <= 0 {
		meta.ImageSize = int(meta.InputShape[3])
	}

	return &meta, nil
}

// InputSize returns the number of float32 values the input tensor holds.
func (m *Metadata) InputSize() int {
	size := 1
	for _, dim := range m.InputShape {
		size *= int(dim)
	}
	return size
}
