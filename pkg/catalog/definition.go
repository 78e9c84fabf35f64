package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the serialized form of a catalog, as stored in YAML files or
// assembled from database rows.
type Definition struct {
	Version              string                 `yaml:"version" json:"version"`
	DefaultTimeDimension string                 `yaml:"default_time_dimension,omitempty" json:"default_time_dimension,omitempty"`
	Metrics              []EntryDefinition      `yaml:"metrics" json:"metrics"`
	Dimensions           []EntryDefinition      `yaml:"dimensions" json:"dimensions"`
	TimeDimensions       []EntryDefinition      `yaml:"time_dimensions" json:"time_dimensions"`
	TimeWindows          []TimeWindowDefinition `yaml:"time_windows,omitempty" json:"time_windows,omitempty"`
}

// EntryDefinition describes one metric, dimension or time dimension.
type EntryDefinition struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name,omitempty" json:"name,omitempty"`
	DisplayName    string   `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Description    string   `yaml:"description,omitempty" json:"description,omitempty"`
	Aliases        []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Scopes         []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	PossibleValues []string `yaml:"possible_values,omitempty" json:"possible_values,omitempty"`
	Granularities  []string `yaml:"granularities,omitempty" json:"granularities,omitempty"`
}

// TimeWindowDefinition describes a named window. Rule and EngineRange may be
// left empty for the built-in window names, which carry their own defaults.
type TimeWindowDefinition struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	EngineRange string   `yaml:"engine_range,omitempty" json:"engine_range,omitempty"`
	Rule        string   `yaml:"rule,omitempty" json:"rule,omitempty"`
	Days        int      `yaml:"days,omitempty" json:"days,omitempty"`
}

// ParseDefinition decodes a YAML catalog document.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse catalog yaml: %w", err)
	}
	return def, nil
}

// LoadFile reads a YAML catalog from path and builds a Catalog from it.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	return New(def)
}

// MarshalDefinition encodes def as YAML.
func MarshalDefinition(def Definition) ([]byte, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog yaml: %w", err)
	}
	return data, nil
}
