package personas

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// TypeSpec describes a built-in persona type.
type TypeSpec struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Avatar       string `yaml:"avatar"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Template is a ready-made persona used by the default-persona policy.
type Template struct {
	Name         string   `yaml:"name"`
	Type         Type     `yaml:"type"`
	Skills       []string `yaml:"skills"`
	SystemPrompt string   `yaml:"system_prompt"`
}

type Catalog struct {
	DefaultType     Type               `yaml:"default_type"`
	Types           map[Type]*TypeSpec `yaml:"types"`
	DefaultPersonas []Template         `yaml:"default_personas"`
}

// DefaultCatalog decodes the embedded catalog. It panics on a broken
// embedded file, which only a bad build can produce.
func DefaultCatalog() *Catalog {
	c, err := DecodeCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read persona catalog %s", path)
	}
	return DecodeCatalog(b)
}

func DecodeCatalog(b []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "could not decode persona catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Validate() error {
	if c.DefaultType == "" {
		return &ValidationError{Field: "default_type", Reason: "must not be empty"}
	}
	if _, ok := c.Types[c.DefaultType]; !ok {
		return &ValidationError{Field: "default_type", Reason: "must name a type defined in types"}
	}
	for t := range c.Types {
		if !t.IsKnown() {
			return &ValidationError{Field: "types", Reason: "unknown type " + string(t)}
		}
	}
	for i, tpl := range c.DefaultPersonas {
		if tpl.Name == "" || tpl.Type == "" || tpl.SystemPrompt == "" {
			return &ValidationError{
				Field:  "default_personas",
				Reason: fmt.Sprintf("entry %d needs name, type and system_prompt", i),
			}
		}
	}
	return nil
}

// Spec returns the spec for t, or the default type's spec when t is not in
// the catalog.
func (c *Catalog) Spec(t Type) *TypeSpec {
	if s, ok := c.Types[t]; ok && s != nil {
		return s
	}
	return c.Types[c.DefaultType]
}

// SystemPrompt returns the built-in prompt for t. Custom and unknown types
// have none.
func (c *Catalog) SystemPrompt(t Type) string {
	s, ok := c.Types[t]
	if !ok || s == nil || t == TypeCustom {
		return ""
	}
	return s.SystemPrompt
}

func (c *Catalog) Avatar(t Type) string {
	if s := c.Spec(t); s != nil {
		return s.Avatar
	}
	return ""
}

// TypeNames lists the catalog types in a stable order.
func (c *Catalog) TypeNames() []Type {
	out := make([]Type, 0, len(c.Types))
	for t := range c.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
