package topology

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
)

// Load reads a topology file, applies defaults, and validates it.
// Unknown fields are rejected so a typo cannot silently change the
// cluster shape.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	return Parse(data)
}

// Parse decodes topology YAML, applies defaults, and validates.
func Parse(data []byte) (*Topology, error) {
	var t Topology
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, errdefs.Input(fmt.Errorf("failed to parse topology: %w", err))
	}

	if err := t.ApplyDefaults(); err != nil {
		return nil, errdefs.Input(err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
