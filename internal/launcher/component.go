package launcher

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Component is a unit the runtime discovers from the boot component.
// Implementations should be pointer types so discovery can tell instances
// apart.
type Component interface {
	Name() string
}

// Parent is a Component that exposes child components for discovery.
type Parent interface {
	Component
	Components() []Component
}

// Registry records which component carries the boot marker. Exactly one
// component may be booted per process.
type Registry struct {
	mu   sync.Mutex
	boot []Component
}

// Boot marks c as the root of component discovery.
func (r *Registry) Boot(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boot = append(r.boot, c)
}

// Root returns the single boot component. Zero or several boot components
// are a ConfigurationError.
func (r *Registry) Root() (Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch len(r.boot) {
	case 0:
		return nil, &ConfigurationError{Err: ErrNoRootComponent}
	case 1:
		if isNil(r.boot[0]) {
			return nil, &ConfigurationError{Reason: "boot component is nil", Err: ErrNoRootComponent}
		}
		return r.boot[0], nil
	default:
		names := make([]string, len(r.boot))
		for i, c := range r.boot {
			names[i] = componentName(c)
		}
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("boot components: %s", strings.Join(names, ", ")),
			Err:    ErrDuplicateRoot,
		}
	}
}

// Discover walks the component tree from root depth-first and returns every
// component once, in discovery order. A component reached twice through
// different parents is listed once; two different components sharing a name
// are a ConfigurationError.
func Discover(root Component) ([]Component, error) {
	if isNil(root) {
		return nil, &ConfigurationError{Err: ErrNoRootComponent}
	}

	seen := make(map[string]Component)
	var out []Component

	var walk func(c Component, path []string) error
	walk = func(c Component, path []string) error {
		name := c.Name()
		if name == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("unnamed component under %s", where(path))}
		}
		if prev, ok := seen[name]; ok {
			if sameComponent(prev, c) {
				return nil
			}
			return &ConfigurationError{Reason: fmt.Sprintf("duplicate component name %q under %s", name, where(path))}
		}
		seen[name] = c
		out = append(out, c)

		p, ok := c.(Parent)
		if !ok {
			return nil
		}
		childPath := append(append([]string(nil), path...), name)
		for _, child := range p.Components() {
			if isNil(child) {
				continue
			}
			if err := walk(child, childPath); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func where(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	return strings.Join(path, "/")
}

func componentName(c Component) string {
	if isNil(c) {
		return "<nil>"
	}
	return c.Name()
}

func isNil(c Component) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func sameComponent(a, b Component) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
