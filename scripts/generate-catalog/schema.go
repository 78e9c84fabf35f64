package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/models"
)

// schemaFile is the subset of a Cube data model file the generator reads.
type schemaFile struct {
	Cubes []cubeDef `yaml:"cubes"`
}

type cubeDef struct {
	Name        string      `yaml:"name"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Measures    []memberDef `yaml:"measures"`
	Dimensions  []memberDef `yaml:"dimensions"`
}

type memberDef struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	PrimaryKey  bool   `yaml:"primary_key"`
	Public      *bool  `yaml:"public"`
}

func (m memberDef) hidden() bool {
	return m.Public != nil && !*m.Public
}

// generateOptions controls how schema members become catalog entries.
type generateOptions struct {
	Version              string
	DefaultTimeDimension string
	// IncludePrimaryKeys keeps primary_key dimensions, which are usually ids
	// nobody groups by.
	IncludePrimaryKeys bool
}

// readSchemaDir parses every *.yml and *.yaml file in dir, in name order.
func readSchemaDir(dir string) ([]cubeDef, error) {
	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no schema files in %s", dir)
	}
	sort.Strings(paths)

	var cubes []cubeDef
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var f schemaFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cubes = append(cubes, f.Cubes...)
	}
	return cubes, nil
}

// buildDefinition turns cube members into a catalog definition. Member ids are
// "<cube>.<member>" so they can be sent to the engine unchanged. Time windows
// are left out so the built-in set applies.
func buildDefinition(cubes []cubeDef, opts generateOptions) (catalog.Definition, error) {
	def := catalog.Definition{
		Version:              opts.Version,
		DefaultTimeDimension: opts.DefaultTimeDimension,
		Metrics:              []catalog.EntryDefinition{},
		Dimensions:           []catalog.EntryDefinition{},
		TimeDimensions:       []catalog.EntryDefinition{},
	}

	for _, cube := range cubes {
		if cube.Name == "" {
			return def, fmt.Errorf("cube without a name")
		}
		scopes := inferScopes(cube.Name)

		for _, m := range cube.Measures {
			if m.Name == "" || m.hidden() {
				continue
			}
			def.Metrics = append(def.Metrics, entryFor(cube.Name, m, scopes, false))
		}
		for _, d := range cube.Dimensions {
			if d.Name == "" || d.hidden() || (d.PrimaryKey && !opts.IncludePrimaryKeys) {
				continue
			}
			if strings.EqualFold(d.Type, "time") {
				e := entryFor(cube.Name, d, scopes, false)
				e.Granularities = models.GranularityNames()
				def.TimeDimensions = append(def.TimeDimensions, e)
				continue
			}
			def.Dimensions = append(def.Dimensions, entryFor(cube.Name, d, scopes, true))
		}
	}

	if def.DefaultTimeDimension == "" && len(def.TimeDimensions) == 1 {
		def.DefaultTimeDimension = def.TimeDimensions[0].ID
	}

	// catalog.New rejects duplicates and unknown defaults; run it so a bad
	// schema fails here instead of at server start.
	if _, err := catalog.New(def); err != nil {
		return def, err
	}
	return def, nil
}

func entryFor(cubeName string, m memberDef, scopes []string, pluralAlias bool) catalog.EntryDefinition {
	e := catalog.EntryDefinition{
		ID:          cubeName + "." + m.Name,
		Name:        m.Name,
		DisplayName: m.Title,
		Description: strings.TrimSpace(m.Description),
		Scopes:      scopes,
	}
	if pluralAlias {
		plural := inflection.Plural(m.Name)
		if plural != m.Name {
			e.Aliases = append(e.Aliases, plural)
		}
	}
	return e
}

// inferScopes tags members of cubes named after a sales scope.
func inferScopes(cubeName string) []string {
	name := strings.ToLower(cubeName)
	var out []string
	for _, s := range models.Scopes() {
		if strings.Contains(name, s.String()) {
			out = append(out, s.String())
		}
	}
	return out
}
