package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/SentientPlay/internal/scene"
	"github.com/AaronLay10/SentientPlay/internal/value"
	"github.com/AaronLay10/SentientPlay/internal/variables"
)

// SceneConfig seeds the scene directory and the shared variable definitions.
type SceneConfig struct {
	Version   int            `yaml:"version"`
	Entities  []EntitySeed   `yaml:"entities"`
	Variables []VariableSeed `yaml:"variables"`
}

type EntitySeed struct {
	ID       string                 `yaml:"id"`
	Name     string                 `yaml:"name"`
	Parent   string                 `yaml:"parent"`
	Tags     []string               `yaml:"tags"`
	X        float64                `yaml:"x"`
	Y        float64                `yaml:"y"`
	AnchorX  float64                `yaml:"anchor_x"`
	AnchorY  float64                `yaml:"anchor_y"`
	PivotX   float64                `yaml:"pivot_x"`
	PivotY   float64                `yaml:"pivot_y"`
	Width    float64                `yaml:"width"`
	Height   float64                `yaml:"height"`
	Behavior string                 `yaml:"behavior"`
	Props    map[string]interface{} `yaml:"props"`
}

type VariableSeed struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Scope       string      `yaml:"scope"`
	Default     interface{} `yaml:"default"`
	Value       interface{} `yaml:"value"`
	Min         *float64    `yaml:"min"`
	Max         *float64    `yaml:"max"`
	Step        *float64    `yaml:"step"`
	Readonly    bool        `yaml:"readonly"`
	Description string      `yaml:"description"`
}

func LoadScene(path string) (*SceneConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg SceneConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported scene.yaml version: %d", cfg.Version)
	}

	return &cfg, nil
}

// Apply adds the seeded entities to dir, parents before children whatever
// their order in the file, then declares and sets the variables.
func (c *SceneConfig) Apply(dir *scene.Directory, vars *variables.Store) error {
	pending := make([]EntitySeed, len(c.Entities))
	copy(pending, c.Entities)
	for len(pending) > 0 {
		var next []EntitySeed
		for _, s := range pending {
			if s.Parent != "" && !dir.Exists(s.Parent) {
				next = append(next, s)
				continue
			}
			e, err := s.entity()
			if err != nil {
				return err
			}
			if err := dir.Add(e); err != nil {
				return fmt.Errorf("entity %q: %w", s.ID, err)
			}
		}
		if len(next) == len(pending) {
			return fmt.Errorf("entity %q: parent %q: %w", next[0].ID, next[0].Parent, scene.ErrNotFound)
		}
		pending = next
	}

	if vars == nil {
		return nil
	}
	for _, s := range c.Variables {
		def, initial, err := s.definition()
		if err != nil {
			return err
		}
		if err := vars.Define(def); err != nil {
			return err
		}
		if initial != nil {
			if _, err := vars.Set(def.Name, def.Scope, initial, "", variables.SourceSystem); err != nil {
				return fmt.Errorf("variable %q: %w", def.Name, err)
			}
		}
	}
	return nil
}

func (s EntitySeed) entity() (scene.Entity, error) {
	e := scene.Entity{
		ID:       s.ID,
		Name:     s.Name,
		Parent:   s.Parent,
		Tags:     s.Tags,
		X:        s.X,
		Y:        s.Y,
		AnchorX:  s.AnchorX,
		AnchorY:  s.AnchorY,
		PivotX:   s.PivotX,
		PivotY:   s.PivotY,
		Width:    s.Width,
		Height:   s.Height,
		Behavior: s.Behavior,
	}
	if len(s.Props) > 0 {
		props, err := value.FromAny(s.Props)
		if err != nil {
			return scene.Entity{}, fmt.Errorf("entity %q: props: %w", s.ID, err)
		}
		obj, ok := props.(value.Object)
		if !ok {
			return scene.Entity{}, fmt.Errorf("entity %q: props must be a mapping", s.ID)
		}
		e.Props = obj
	}
	return e, nil
}

// definition converts the seed. Scene seeds may only declare global and
// scene variables; node and local values need an owner.
func (s VariableSeed) definition() (variables.Definition, value.Value, error) {
	scope := variables.Scope(s.Scope)
	if scope == "" {
		scope = variables.ScopeGlobal
	}
	if scope != variables.ScopeGlobal && scope != variables.ScopeScene {
		return variables.Definition{}, nil, fmt.Errorf("variable %q: scope %q not allowed in a scene seed", s.Name, s.Scope)
	}
	def := variables.Definition{
		Name:        s.Name,
		Type:        variables.Type(s.Type),
		Scope:       scope,
		Min:         s.Min,
		Max:         s.Max,
		Step:        s.Step,
		Readonly:    s.Readonly,
		Description: s.Description,
	}
	if s.Default != nil {
		v, err := value.FromAny(s.Default)
		if err != nil {
			return def, nil, fmt.Errorf("variable %q: default: %w", s.Name, err)
		}
		def.Default = v
	}
	var initial value.Value
	if s.Value != nil {
		v, err := value.FromAny(s.Value)
		if err != nil {
			return def, nil, fmt.Errorf("variable %q: value: %w", s.Name, err)
		}
		initial = v
	}
	return def, initial, nil
}
