// Package workflow implements the REMS checklist: a fixed ordered set of
// steps completed strictly one after another.
package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed steps.yaml
var defaultSteps []byte

// Step is one static workflow step. Ordinals start at 1.
type Step struct {
	Ordinal int      `yaml:"-" json:"ordinal"`
	Title   string   `yaml:"title" json:"title"`
	Content []string `yaml:"content" json:"content"`
}

// Monitoring is the static content of the ongoing monitoring dashboard.
type Monitoring struct {
	Checklist             []string `yaml:"checklist" json:"checklist"`
	Warning               string   `yaml:"warning" json:"warning"`
	RequiredDocumentation []string `yaml:"required_documentation" json:"required_documentation"`
	NextSteps             []string `yaml:"next_steps" json:"next_steps"`
}

// Definition is the immutable step list of a workflow. It is loaded once
// at startup and only read afterwards.
type Definition struct {
	Name       string     `yaml:"name" json:"name"`
	Steps      []Step     `yaml:"steps" json:"steps"`
	Monitoring Monitoring `yaml:"monitoring" json:"monitoring"`
}

// DefaultDefinition returns the built-in six step REMS definition.
func DefaultDefinition() (*Definition, error) {
	return ParseDefinition(defaultSteps)
}

// LoadDefinition reads a definition from a YAML file. An empty path
// selects the built-in definition.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes and validates a YAML definition, numbering the
// steps in document order.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow definition %q has no steps", def.Name)
	}
	for i := range def.Steps {
		def.Steps[i].Ordinal = i + 1
		if strings.TrimSpace(def.Steps[i].Title) == "" {
			return nil, fmt.Errorf("workflow step %d has no title", i+1)
		}
	}
	return &def, nil
}

// Len returns the number of steps.
func (d *Definition) Len() int { return len(d.Steps) }

// Step returns the step with the given ordinal.
func (d *Definition) Step(ordinal int) (Step, bool) {
	if ordinal < 1 || ordinal > len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[ordinal-1], true
}
