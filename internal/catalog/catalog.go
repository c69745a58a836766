package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is the physical dimension of a unit. Units never convert
// across categories.
type Category string

const (
	CategoryWeight Category = "weight"
	CategoryVolume Category = "volume"
	CategoryCount  Category = "count"
)

// Unit is a measurement unit with a conversion factor to its category's
// base unit (grams for weight, milliliters for volume, pieces for count).
type Unit struct {
	Name     string   `yaml:"name" json:"name"`
	Category Category `yaml:"category" json:"category"`
	Factor   float64  `yaml:"factor" json:"factor"`
}

// Serving is the standard per-person quantity for an ingredient, used to
// estimate recipe requirements when no absolute amount is given.
type Serving struct {
	Quantity float64 `yaml:"quantity" json:"quantity"`
	Unit     string  `yaml:"unit" json:"unit"`
}

// Ingredient is a canonical ingredient entry in the reference catalog.
type Ingredient struct {
	Canonical string   `yaml:"canonical" json:"canonical"`
	Display   string   `yaml:"display" json:"display"`
	Category  string   `yaml:"category" json:"category"`
	Group     string   `yaml:"group" json:"group"`
	Prior     float64  `yaml:"prior" json:"prior"`
	Serving   *Serving `yaml:"serving" json:"serving,omitempty"`
}

// Catalog holds the static reference data: unit definitions, canonical
// ingredients with their visual-similarity groups, and standard servings.
// It is loaded once at process start and never mutated afterwards.
type Catalog struct {
	units       map[string]Unit
	ingredients map[string]Ingredient
	groups      map[string][]string
}

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Units       []Unit       `yaml:"units"`
	Ingredients []Ingredient `yaml:"ingredients"`
}

// Load parses the embedded reference catalog.
func Load() (*Catalog, error) {
	return LoadFrom(catalogYAML)
}

// LoadFrom parses a catalog from raw YAML. Exposed so tests and
// deployments with a custom catalog can build their own.
func LoadFrom(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := &Catalog{
		units:       make(map[string]Unit, len(file.Units)),
		ingredients: make(map[string]Ingredient, len(file.Ingredients)),
		groups:      make(map[string][]string),
	}

	for _, u := range file.Units {
		if u.Name == "" {
			return nil, fmt.Errorf("catalog unit with empty name")
		}
		if u.Factor <= 0 {
			return nil, fmt.Errorf("catalog unit %q: factor must be positive", u.Name)
		}
		switch u.Category {
		case CategoryWeight, CategoryVolume, CategoryCount:
		default:
			return nil, fmt.Errorf("catalog unit %q: unknown category %q", u.Name, u.Category)
		}
		if _, ok := c.units[u.Name]; ok {
			return nil, fmt.Errorf("catalog unit %q defined twice", u.Name)
		}
		c.units[u.Name] = u
	}

	for _, ing := range file.Ingredients {
		canonical := Normalize(ing.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("catalog ingredient with empty canonical name")
		}
		ing.Canonical = canonical
		if ing.Display == "" {
			ing.Display = ing.Canonical
		}
		if ing.Serving != nil {
			if ing.Serving.Quantity <= 0 {
				return nil, fmt.Errorf("catalog ingredient %q: serving quantity must be positive", canonical)
			}
			if _, ok := c.units[ing.Serving.Unit]; !ok {
				return nil, fmt.Errorf("catalog ingredient %q: unknown serving unit %q", canonical, ing.Serving.Unit)
			}
		}
		if _, ok := c.ingredients[canonical]; ok {
			return nil, fmt.Errorf("catalog ingredient %q defined twice", canonical)
		}
		c.ingredients[canonical] = ing
		if ing.Group != "" {
			c.groups[ing.Group] = append(c.groups[ing.Group], canonical)
		}
	}

	// Stable group member order so ranking is deterministic
	for _, members := range c.groups {
		sort.Strings(members)
	}

	return c, nil
}

// Unit looks up a unit by name.
func (c *Catalog) Unit(name string) (Unit, bool) {
	u, ok := c.units[name]
	return u, ok
}

// Ingredient looks up an ingredient by canonical name.
func (c *Catalog) Ingredient(canonical string) (Ingredient, bool) {
	ing, ok := c.ingredients[Normalize(canonical)]
	return ing, ok
}

// StandardServing returns the per-person serving for a canonical
// ingredient, if the catalog defines one.
func (c *Catalog) StandardServing(canonical string) (Serving, bool) {
	ing, ok := c.ingredients[Normalize(canonical)]
	if !ok || ing.Serving == nil {
		return Serving{}, false
	}
	return *ing.Serving, true
}

// GroupMembers returns the canonical names in a visual-similarity group,
// sorted for deterministic iteration.
func (c *Catalog) GroupMembers(group string) []string {
	members := c.groups[group]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// Ingredients returns all catalog ingredients sorted by canonical name.
func (c *Catalog) Ingredients() []Ingredient {
	out := make([]Ingredient, 0, len(c.ingredients))
	for _, ing := range c.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// Normalize converts an ingredient name to its canonical deduplication-key
// form: trimmed, lowercased, inner whitespace collapsed to single spaces.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
