// Package model wraps backend records in typed Go values and keeps the
// registry that maps backend class names to those types.
package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/drewjocham/parsemodel/record"
)

var (
	// ErrInvalidArgument is the kind shared by constructor input errors.
	ErrInvalidArgument = errors.New("model: invalid argument")

	ErrNilObject          = fmt.Errorf("%w: nil parse object", ErrInvalidArgument)
	ErrAlreadyInitialized = errors.New("model: already wraps a different parse object")
	ErrNotInitialized     = errors.New("model: no parse object")
)

// Wrapper is implemented by every type that fronts a backend record.
type Wrapper interface {
	ParseObject() *record.Object
}

// Model associates one backend record with a local value. Typed models embed
// it and declare their fields with `parse:"key"` tags.
//
// The record is shared: the store and other wrappers may hold the same
// *record.Object, and every change made through one is visible to all.
type Model struct {
	mu          sync.RWMutex
	parseObject *record.Object
}

// New returns a Model wrapping obj.
func New(obj *record.Object) (*Model, error) {
	return new(Model).Init(obj)
}

// Init binds m to obj and returns m. A Model wraps a single record for its
// whole lifetime, so re-binding to another record fails.
func (m *Model) Init(obj *record.Object) (*Model, error) {
	if obj == nil {
		return nil, ErrNilObject
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.parseObject != nil && m.parseObject != obj {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, m.parseObject.ClassName())
	}
	m.parseObject = obj
	return m, nil
}

// ParseObject returns the wrapped record, or nil for a zero Model.
func (m *Model) ParseObject() *record.Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parseObject
}

func (m *Model) ClassName() string {
	if obj := m.ParseObject(); obj != nil {
		return obj.ClassName()
	}
	return ""
}

func (m *Model) ObjectID() string {
	if obj := m.ParseObject(); obj != nil {
		return obj.ObjectID()
	}
	return ""
}

func (m *Model) String() string {
	obj := m.ParseObject()
	if obj == nil {
		return "<uninitialized>"
	}
	id := obj.ObjectID()
	if id == "" {
		id = "new"
	}
	return obj.ClassName() + "(" + id + ")"
}

var _ Wrapper = (*Model)(nil)
