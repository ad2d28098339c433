package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hobgoblin/qao/internal/core/priority"
	"github.com/hobgoblin/qao/internal/scripting"
)

// ObjectSpec is one object to spawn. Priority, when set, overrides the
// category priority.
type ObjectSpec struct {
	Class    string         `yaml:"class"`
	Name     string         `yaml:"name"`
	Category string         `yaml:"category"`
	Priority *int           `yaml:"priority"`
	State    map[string]any `yaml:"state"`
}

// Scene is a category graph plus the objects spawned into it.
type Scene struct {
	Name       string                  `yaml:"name"`
	Resolver   priority.Settings       `yaml:"resolver"`
	Categories []priority.CategorySpec `yaml:"categories"`
	Objects    []ObjectSpec            `yaml:"objects"`

	resolver *priority.Resolver[string]
}

// Load reads and validates a scene file.
func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scene.
func Parse(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scene) validate() error {
	names := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		if o.Class == "" {
			return fmt.Errorf("object #%d: missing class", i)
		}
		if o.Name == "" {
			return fmt.Errorf("object #%d (%s): missing name", i, o.Class)
		}
		if names[o.Name] {
			return fmt.Errorf("object %q declared twice", o.Name)
		}
		names[o.Name] = true
		if o.Category == "" && o.Priority == nil {
			return fmt.Errorf("object %q: needs a category or a priority", o.Name)
		}
	}
	return nil
}

// Resolve builds and resolves the category graph. The result is cached.
func (s *Scene) Resolve() (*priority.Resolver[string], error) {
	if s.resolver != nil {
		return s.resolver, nil
	}
	r, err := priority.Build(s.Resolver, s.Categories)
	if err != nil {
		return nil, err
	}
	if err := r.ResolveAll(); err != nil {
		return nil, fmt.Errorf("resolve scene categories: %w", err)
	}
	s.resolver = r
	return r, nil
}

// PriorityOf returns the execution priority o will be spawned with.
func (s *Scene) PriorityOf(o ObjectSpec) (int, error) {
	if o.Priority != nil {
		return *o.Priority, nil
	}
	r, err := s.Resolve()
	if err != nil {
		return 0, err
	}
	p, err := r.PriorityOf(o.Category)
	if err != nil {
		return 0, fmt.Errorf("object %q: %w", o.Name, err)
	}
	return p, nil
}

// Spawn adds every object, in file order, to the runtime bound to e.
func (s *Scene) Spawn(e *scripting.Engine) ([]*scripting.ScriptObject, error) {
	objs := make([]*scripting.ScriptObject, 0, len(s.Objects))
	for _, o := range s.Objects {
		p, err := s.PriorityOf(o)
		if err != nil {
			return objs, err
		}
		obj, err := e.Spawn(o.Class, o.Name, p, o.State)
		if err != nil {
			return objs, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
