package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Descriptor describes how to build the backing application. There are two
// construction paths: a set of components registered onto a fresh gin
// engine, or a pre-built http.Handler.
type Descriptor interface {
	Build(ctx context.Context, env *HostingEnvironment) (http.Handler, error)
}

// Component is one declarative piece of a component-built application,
// typically a route group
type Component interface {
	Name() string
	Register(ctx context.Context, engine *gin.Engine, env *HostingEnvironment) error
}

// RegisterFunc registers routes, middleware or state onto the engine
type RegisterFunc func(ctx context.Context, engine *gin.Engine, env *HostingEnvironment) error

type funcComponent struct {
	name string
	fn   RegisterFunc
}

// NewComponent creates a component from a registration function
func NewComponent(name string, fn RegisterFunc) Component {
	return &funcComponent{name: name, fn: fn}
}

func (c *funcComponent) Name() string {
	return c.name
}

func (c *funcComponent) Register(ctx context.Context, engine *gin.Engine, env *HostingEnvironment) error {
	return c.fn(ctx, engine, env)
}

// ComponentDescriptor builds a gin engine from a set of components
type ComponentDescriptor struct {
	components []Component
	middleware []gin.HandlerFunc
}

// NewComponentDescriptor creates a descriptor from the given components
func NewComponentDescriptor(components ...Component) *ComponentDescriptor {
	return &ComponentDescriptor{components: components}
}

// Use adds middleware installed on the engine before any component
func (d *ComponentDescriptor) Use(middleware ...gin.HandlerFunc) *ComponentDescriptor {
	d.middleware = append(d.middleware, middleware...)
	return d
}

// Components returns the registered components in registration order
func (d *ComponentDescriptor) Components() []Component {
	out := make([]Component, len(d.components))
	copy(out, d.components)
	return out
}

// Build creates the engine and registers every component on it
func (d *ComponentDescriptor) Build(ctx context.Context, env *HostingEnvironment) (http.Handler, error) {
	if len(d.components) == 0 {
		return nil, errors.New("component descriptor has no components")
	}

	engine := gin.New()
	engine.Use(d.middleware...)

	seen := make(map[string]bool, len(d.components))
	for _, component := range d.components {
		if component == nil {
			return nil, errors.New("component descriptor contains a nil component")
		}

		name := component.Name()
		if seen[name] {
			return nil, fmt.Errorf("duplicate component %q", name)
		}
		seen[name] = true

		if err := component.Register(ctx, engine, env); err != nil {
			return nil, fmt.Errorf("failed to register component %q: %w", name, err)
		}

		if env != nil && env.Logger != nil {
			env.Logger.WithFields(logrus.Fields{
				"component": name,
			}).Debug("Component registered")
		}
	}

	return engine, nil
}

// HandlerDescriptor wraps an application that was built elsewhere
type HandlerDescriptor struct {
	handler http.Handler
}

// NewHandlerDescriptor creates a descriptor around a pre-built handler
func NewHandlerDescriptor(handler http.Handler) *HandlerDescriptor {
	return &HandlerDescriptor{handler: handler}
}

// Build returns the wrapped handler
func (d *HandlerDescriptor) Build(ctx context.Context, env *HostingEnvironment) (http.Handler, error) {
	if d.handler == nil {
		return nil, errors.New("handler descriptor has a nil handler")
	}
	return d.handler, nil
}
