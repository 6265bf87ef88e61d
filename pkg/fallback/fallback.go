// Package fallback produces the in-character replies shown when the
// completion endpoint cannot be reached, and the welcome lines shown when a
// persona is selected.
package fallback

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Templates is the decoded template file.
type Templates struct {
	DefaultType string                   `yaml:"default_type"`
	Base        []string                 `yaml:"base"`
	Types       map[string]TypeTemplates `yaml:"types"`
}

type TypeTemplates struct {
	Fallbacks []string `yaml:"fallbacks"`
	Welcome   []string `yaml:"welcome"`
}

type compiledType struct {
	fallbacks []*template.Template
	welcome   []*template.Template
}

type fallbackData struct {
	Fallback    string
	UserMessage string
}

type welcomeData struct {
	Name string
}

// Generator picks and renders templates. Selection uses its own random
// source so tests can make it deterministic.
type Generator struct {
	mu          sync.Mutex
	rand        *rand.Rand
	base        []string
	defaultType string
	types       map[string]*compiledType
}

type Option func(*Generator)

func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rand = r
	}
}

func DecodeTemplates(b []byte) (*Templates, error) {
	t := &Templates{}
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, errors.Wrap(err, "could not decode fallback templates")
	}
	return t, nil
}

// New builds a Generator from the embedded templates.
func New(options ...Option) (*Generator, error) {
	t, err := DecodeTemplates(defaultTemplatesYAML)
	if err != nil {
		return nil, err
	}
	return NewFromTemplates(t, options...)
}

func NewFromTemplates(t *Templates, options ...Option) (*Generator, error) {
	if len(t.Base) == 0 {
		return nil, errors.New("fallback templates have no base lines")
	}
	if _, ok := t.Types[t.DefaultType]; !ok {
		return nil, errors.Errorf("default type %q has no templates", t.DefaultType)
	}

	g := &Generator{
		base:        append([]string(nil), t.Base...),
		defaultType: t.DefaultType,
		types:       map[string]*compiledType{},
	}
	for name, tt := range t.Types {
		c := &compiledType{}
		for i, s := range tt.Fallbacks {
			tmpl, err := parse(fmt.Sprintf("%s-fallback-%d", name, i), s)
			if err != nil {
				return nil, err
			}
			c.fallbacks = append(c.fallbacks, tmpl)
		}
		for i, s := range tt.Welcome {
			tmpl, err := parse(fmt.Sprintf("%s-welcome-%d", name, i), s)
			if err != nil {
				return nil, err
			}
			c.welcome = append(c.welcome, tmpl)
		}
		g.types[name] = c
	}
	if len(g.types[g.defaultType].fallbacks) == 0 || len(g.types[g.defaultType].welcome) == 0 {
		return nil, errors.Errorf("default type %q needs fallback and welcome templates", g.defaultType)
	}

	for _, o := range options {
		o(g)
	}
	if g.rand == nil {
		g.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return g, nil
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse template %s", name)
	}
	return tmpl, nil
}

// RandomBase returns one of the generic fallback lines.
func (g *Generator) RandomBase() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.base[g.rand.Intn(len(g.base))]
}

// Generate embeds baseFallback and userMessage in a template of the given
// persona type. Unknown types use the default type's templates.
func (g *Generator) Generate(personaType string, baseFallback string, userMessage string) string {
	c := g.typeFor(personaType)
	g.mu.Lock()
	tmpl := c.fallbacks[g.rand.Intn(len(c.fallbacks))]
	g.mu.Unlock()

	s, err := render(tmpl, fallbackData{Fallback: baseFallback, UserMessage: userMessage})
	if err != nil {
		log.Warn().Err(err).Str("template", tmpl.Name()).Msg("Could not render fallback template")
		return fmt.Sprintf("%s \"%s\"", baseFallback, userMessage)
	}
	return s
}

// Welcome returns a welcome line for the persona type.
func (g *Generator) Welcome(personaType string, personaName string) string {
	c := g.typeFor(personaType)
	g.mu.Lock()
	tmpl := c.welcome[g.rand.Intn(len(c.welcome))]
	g.mu.Unlock()

	s, err := render(tmpl, welcomeData{Name: personaName})
	if err != nil {
		log.Warn().Err(err).Str("template", tmpl.Name()).Msg("Could not render welcome template")
		return ""
	}
	return s
}

func (g *Generator) typeFor(personaType string) *compiledType {
	c, ok := g.types[strings.ToLower(personaType)]
	if !ok || len(c.fallbacks) == 0 || len(c.welcome) == 0 {
		return g.types[g.defaultType]
	}
	return c
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
