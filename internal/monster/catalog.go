package monster

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog holds monster templates keyed by id.
type Catalog struct {
	Monsters map[string]Template `yaml:"monsters"`
}

// DefaultCatalog returns a catalog with one template per type.
func DefaultCatalog() *Catalog {
	c := &Catalog{Monsters: make(map[string]Template, len(DefaultTemplates))}
	for typ, tmpl := range DefaultTemplates {
		c.Monsters[string(typ)] = tmpl
	}
	return c
}

// LoadCatalog loads monster templates from a YAML file.
func LoadCatalog(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read monsters file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse monsters YAML: %w", err)
	}

	for id, tmpl := range catalog.Monsters {
		if err := tmpl.validate(); err != nil {
			return nil, fmt.Errorf("monster %q: %w", id, err)
		}
	}

	return &catalog, nil
}

func (t Template) validate() error {
	if t.Type == "" {
		return fmt.Errorf("missing type")
	}
	if t.MaxHP <= 0 {
		return fmt.Errorf("max_hp must be positive")
	}
	if t.CounterattackChance < 0 || t.CounterattackChance > 100 {
		return fmt.Errorf("counterattack_chance must be 0-100")
	}
	if t.BaseDamage[0] > t.BaseDamage[1] {
		return fmt.Errorf("base_damage min exceeds max")
	}
	return nil
}

// Get returns a template by id.
func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.Monsters[id]
	return t, ok
}

// ByType returns the first template (by id order) of the given type.
func (c *Catalog) ByType(t Type) (Template, bool) {
	for _, id := range c.IDs() {
		if c.Monsters[id].Type == t {
			return c.Monsters[id], true
		}
	}
	tmpl, ok := DefaultTemplates[t]
	return tmpl, ok
}

// IDs returns template ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Monsters))
	for id := range c.Monsters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
