package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// writeValue prints value as indented JSON or as YAML.
func writeValue(out io.Writer, format string, value any) error {
	switch format {
	case "", "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case "yaml":
		// Round-trip through JSON so YAML keys follow the json tags.
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(encoded, &generic); err != nil {
			return err
		}
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(generic)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
