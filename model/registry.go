package model

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/drewjocham/parsemodel/record"
)

var (
	ErrDuplicateClass = errors.New("model: class already registered")
	ErrUnknownClass   = errors.New("model: class not registered")
	ErrClassMismatch  = errors.New("model: record class does not match model")
	ErrBadFactory     = errors.New("model: factory did not wrap the given record")
)

// Factory builds the typed wrapper for a record of one class.
type Factory func(*record.Object) (Wrapper, error)

// ClassNamer lets a model type name its own backend class.
type ClassNamer interface {
	ParseClassName() string
}

type binder[T any] interface {
	*T
	Wrapper
	Init(*record.Object) (*Model, error)
}

type registration struct {
	factory Factory
	typ     reflect.Type
}

// Registry maps backend class names to model factories. It is populated
// explicitly during startup and is safe for concurrent use afterwards.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]registration
	strict  bool
}

type Option func(*Registry)

// WithStrict makes Wrap reject records of unregistered classes instead of
// falling back to a plain *Model.
func WithStrict(strict bool) Option {
	return func(r *Registry) { r.strict = strict }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{classes: make(map[string]registration)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// RegisterModel registers T under className with the default registry.
func RegisterModel[T any, PT binder[T]](className string) error {
	return RegisterType[T, PT](defaultRegistry, className)
}

// Register adds a factory for className.
func (r *Registry) Register(className string, f Factory) error {
	return r.register(className, nil, f)
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(className string, f Factory) {
	if err := r.Register(className, f); err != nil {
		panic(err)
	}
}

// RegisterType registers the struct type T, which must embed Model. An empty
// className falls back to T's ParseClassName method, then to the type name.
func RegisterType[T any, PT binder[T]](r *Registry, className string) error {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return fmt.Errorf("model: %s is not a struct", typ)
	}
	if className == "" {
		className = typ.Name()
		if n, ok := any(PT(new(T))).(ClassNamer); ok {
			className = n.ParseClassName()
		}
	}
	if _, err := BoundFields(typ); err != nil {
		return err
	}

	return r.register(className, typ, func(obj *record.Object) (Wrapper, error) {
		if obj == nil {
			return nil, ErrNilObject
		}
		if obj.ClassName() != className {
			return nil, fmt.Errorf("%w: %s is not %s", ErrClassMismatch, obj.ClassName(), className)
		}
		w := PT(new(T))
		if _, err := w.Init(obj); err != nil {
			return nil, err
		}
		if err := Refresh(w); err != nil {
			return nil, err
		}
		return w, nil
	})
}

func (r *Registry) register(className string, typ reflect.Type, f Factory) error {
	if err := record.ValidateClassName(className); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrInvalidArgument, className)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.classes[className]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, className)
	}
	r.classes[className] = registration{factory: f, typ: typ}
	return nil
}

func (r *Registry) Lookup(className string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.classes[className]
	return reg.factory, ok
}

// Type returns the Go struct type registered for className, if it was
// registered through RegisterType.
func (r *Registry) Type(className string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.classes[className]
	if !ok || reg.typ == nil {
		return nil, false
	}
	return reg.typ, true
}

// Classes returns the registered class names in sorted order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.classes))
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}

func (r *Registry) Strict() bool { return r.strict }

// Wrap returns the registered model for obj's class, sharing obj.
func (r *Registry) Wrap(obj *record.Object) (Wrapper, error) {
	if obj == nil {
		return nil, ErrNilObject
	}

	f, ok := r.Lookup(obj.ClassName())
	if !ok {
		if r.strict {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClass, obj.ClassName())
		}
		m, err := New(obj)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	w, err := f(obj)
	if err != nil {
		return nil, fmt.Errorf("model: wrap %s: %w", obj.ClassName(), err)
	}
	if w == nil || w.ParseObject() != obj {
		return nil, fmt.Errorf("%w: %s", ErrBadFactory, obj.ClassName())
	}
	return w, nil
}
