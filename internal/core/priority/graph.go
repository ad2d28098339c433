package priority

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds the numeric parameters of a resolver as written in YAML.
type Settings struct {
	Start int `yaml:"start"`
	Step  int `yaml:"step"` // 0 means 1
}

// CategorySpec declares one category and its edges.
type CategorySpec struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
	Precedes  []string `yaml:"precedes"`
}

// Graph is the on-disk form of a category graph.
type Graph struct {
	Settings   `yaml:",inline"`
	Categories []CategorySpec `yaml:"categories"`
}

// Build declares every category in file order, then their edges, and returns
// the unresolved resolver.
func Build(s Settings, cats []CategorySpec) (*Resolver[string], error) {
	r := NewResolver[string](WithStart(s.Start), WithStep(s.Step))
	seen := make(map[string]bool, len(cats))
	for i, c := range cats {
		if c.Name == "" {
			return nil, fmt.Errorf("category #%d: missing name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("category %q declared twice", c.Name)
		}
		seen[c.Name] = true
		r.Category(c.Name)
	}
	for _, c := range cats {
		r.Category(c.Name).DependsOn(c.DependsOn...).Precedes(c.Precedes...)
	}
	return r, nil
}

// ParseGraph builds and resolves a resolver from YAML.
func ParseGraph(data []byte) (*Resolver[string], error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse category graph: %w", err)
	}
	r, err := Build(g.Settings, g.Categories)
	if err != nil {
		return nil, err
	}
	if err := r.ResolveAll(); err != nil {
		return nil, fmt.Errorf("resolve category graph: %w", err)
	}
	return r, nil
}

// LoadGraph reads a category graph file.
func LoadGraph(path string) (*Resolver[string], error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category graph: %w", err)
	}
	return ParseGraph(raw)
}
