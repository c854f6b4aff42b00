package montage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPlan reads a plan file. YAML and JSON (a YAML subset) are both accepted,
// either as a bare list or under a top-level "segments" key.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlanFile(data)
}

func ParsePlanFile(data []byte) (Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		var wrapped struct {
			Segments Plan `yaml:"segments"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
		plan = wrapped.Segments
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}
