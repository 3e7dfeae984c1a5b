package profile

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// loadBuiltIns parses the embedded default profiles.
func loadBuiltIns() ([]*DeviceProfile, error) {
	var profiles []*DeviceProfile
	if err := yaml.Unmarshal(defaultsYAML, &profiles); err != nil {
		return nil, fmt.Errorf("parse built-in profiles: %w", err)
	}
	for _, p := range profiles {
		p.BuiltIn = true
	}
	return profiles, nil
}
