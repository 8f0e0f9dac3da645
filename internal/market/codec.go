package market

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalJSON renders an unavailable reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Unavailable()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("reading: %w", err)
	}
	*r = Of(v)
	return nil
}

// UnmarshalYAML accepts a plain scalar; "null", "~" and "na" mark the value
// as unavailable.
func (r *Reading) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("reading: expected scalar at line %d", node.Line)
	}
	switch node.Value {
	case "", "~", "null", "na", "NA":
		*r = Unavailable()
		return nil
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("reading at line %d: %w", node.Line, err)
	}
	*r = Of(v)
	return nil
}
