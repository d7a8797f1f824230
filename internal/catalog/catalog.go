// Package catalog defines the fixed analysis framework: the ordered sections
// and modules of the financial analysis, and the dependency graph between
// modules. The framework ships embedded in the binary and is validated once
// at startup.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed framework.yaml
var frameworkYAML []byte

// Module is one analysis module of the framework.
type Module struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Section groups related modules under one framework part.
type Section struct {
	Title   string   `yaml:"title"`
	Modules []Module `yaml:"modules"`
}

type framework struct {
	Sections     []Section           `yaml:"sections"`
	Dependencies map[string][]string `yaml:"dependencies"`
}

// Catalog is the validated analysis framework. It is immutable after Load.
type Catalog struct {
	sections     []Section
	dependencies map[string][]string
	ordered      []string
	sectionOf    map[string]string
	descriptions map[string]string
}

// Load parses and validates the embedded framework definition.
func Load() (*Catalog, error) {
	var fw framework
	if err := yaml.Unmarshal(frameworkYAML, &fw); err != nil {
		return nil, fmt.Errorf("failed to parse framework definition: %w", err)
	}
	if len(fw.Sections) == 0 {
		return nil, fmt.Errorf("framework definition has no sections")
	}

	c := &Catalog{
		sections:     fw.Sections,
		dependencies: fw.Dependencies,
		sectionOf:    make(map[string]string),
		descriptions: make(map[string]string),
	}
	for _, section := range fw.Sections {
		for _, module := range section.Modules {
			if module.Name == "" {
				return nil, fmt.Errorf("section %q contains a module without a name", section.Title)
			}
			if _, exists := c.sectionOf[module.Name]; exists {
				return nil, fmt.Errorf("duplicate module name %q in framework", module.Name)
			}
			c.sectionOf[module.Name] = section.Title
			c.descriptions[module.Name] = module.Description
			c.ordered = append(c.ordered, module.Name)
		}
	}

	for module, deps := range fw.Dependencies {
		if _, ok := c.sectionOf[module]; !ok {
			return nil, fmt.Errorf("dependency map references unknown module %q", module)
		}
		for _, dep := range deps {
			if _, ok := c.sectionOf[dep]; !ok {
				return nil, fmt.Errorf("module %q depends on unknown module %q", module, dep)
			}
		}
	}

	if err := c.validateAcyclic(); err != nil {
		return nil, err
	}
	return c, nil
}

// AllModules returns every module name in framework order.
func (c *Catalog) AllModules() []string {
	out := make([]string, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Sections returns the framework sections in order.
func (c *Catalog) Sections() []Section {
	return c.sections
}

// Has reports whether the framework defines the named module.
func (c *Catalog) Has(name string) bool {
	_, ok := c.sectionOf[name]
	return ok
}

// SectionOf returns the section title the named module belongs to.
func (c *Catalog) SectionOf(name string) (string, bool) {
	title, ok := c.sectionOf[name]
	return title, ok
}

// Describe returns the one-line description of the named module.
func (c *Catalog) Describe(name string) string {
	return c.descriptions[name]
}

// DependenciesOf returns the prior-analysis dependencies of the named module.
// Modules without an entry have no dependencies.
func (c *Catalog) DependenciesOf(name string) []string {
	deps := c.dependencies[name]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// FilterKnown drops names that are not part of the framework, preserving
// order. The second return lists what was dropped.
func (c *Catalog) FilterKnown(names []string) (known, dropped []string) {
	for _, name := range names {
		if c.Has(name) {
			known = append(known, name)
		} else {
			dropped = append(dropped, name)
		}
	}
	return known, dropped
}

// validateAcyclic runs a depth-first search over the dependency graph and
// rejects any cycle, naming the module where it closes.
func (c *Catalog) validateAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(c.ordered))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("dependency cycle detected at module %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range c.dependencies[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range c.ordered {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
