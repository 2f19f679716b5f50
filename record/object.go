package record

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"sync"
	"time"
)

var (
	ErrInvalidClassName = errors.New("record: invalid class name")
	ErrInvalidKey       = errors.New("record: invalid field key")
	ErrTypeMismatch     = errors.New("record: field type mismatch")
	ErrInvalidValue     = errors.New("record: value cannot be stored")
	ErrUnsavedPointer   = errors.New("record: pointer to an unsaved object")
)

var (
	classNameRe = regexp.MustCompile(`^_?[A-Za-z][A-Za-z0-9_]*$`)
	fieldKeyRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

	reservedKeys = map[string]struct{}{
		"objectId":  {},
		"createdAt": {},
		"updatedAt": {},
		"ACL":       {},
		"className": {},
	}
)

// Pointer references another record by class and objectId.
type Pointer struct {
	ClassName string `json:"className"`
	ObjectID  string `json:"objectId"`
}

func (p Pointer) String() string {
	return p.ClassName + "$" + p.ObjectID
}

// Object is a single backend record. One Object may be referenced by several
// wrappers and by the store at once; all methods are safe for concurrent use.
type Object struct {
	mu        sync.RWMutex
	className string
	objectID  string
	createdAt time.Time
	updatedAt time.Time
	fields    map[string]any
	dirty     map[string]struct{}
	removed   map[string]struct{}
}

// New creates an unsaved record of the given class.
func New(className string) (*Object, error) {
	if err := ValidateClassName(className); err != nil {
		return nil, err
	}
	return &Object{
		className: className,
		fields:    make(map[string]any),
		dirty:     make(map[string]struct{}),
		removed:   make(map[string]struct{}),
	}, nil
}

// NewWithoutData creates a record that only knows its identity.
func NewWithoutData(className, objectID string) (*Object, error) {
	o, err := New(className)
	if err != nil {
		return nil, err
	}
	o.objectID = objectID
	return o, nil
}

func ValidateClassName(name string) error {
	if !classNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidClassName, name)
	}
	return nil
}

func ValidateKey(key string) error {
	if _, ok := reservedKeys[key]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	if !fieldKeyRe.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (o *Object) ClassName() string { return o.className }

func (o *Object) ObjectID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.objectID
}

func (o *Object) CreatedAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.createdAt
}

func (o *Object) UpdatedAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.updatedAt
}

// Pointer returns a reference to this record.
func (o *Object) Pointer() Pointer {
	return Pointer{ClassName: o.className, ObjectID: o.ObjectID()}
}

func (o *Object) Get(key string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.fields[key]
	return v, ok
}

// Set stores value under key and marks it dirty.
func (o *Object) Set(key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("record: field %s: %w", key, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[key] = v
	o.dirty[key] = struct{}{}
	delete(o.removed, key)
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (o *Object) Remove(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.fields[key]; !ok {
		return
	}
	delete(o.fields, key)
	delete(o.dirty, key)
	o.removed[key] = struct{}{}
}

func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Sorted(maps.Keys(o.fields))
}

// Fields returns a shallow copy of the field map.
func (o *Object) Fields() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return maps.Clone(o.fields)
}

// IsNew reports whether the record has never been written.
func (o *Object) IsNew() bool {
	return o.ObjectID() == ""
}

func (o *Object) IsDirty() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.dirty) > 0 || len(o.removed) > 0
}

func (o *Object) DirtyKeys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Sorted(maps.Keys(o.dirty))
}

func (o *Object) RemovedKeys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Sorted(maps.Keys(o.removed))
}

// MarkSaved records a successful write at the given time.
func (o *Object) MarkSaved(objectID string, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	at = at.UTC().Truncate(time.Millisecond)
	if o.createdAt.IsZero() || o.objectID != objectID {
		o.createdAt = at
	}
	o.objectID = objectID
	o.updatedAt = at
	clear(o.dirty)
	clear(o.removed)
}

// Replace swaps in server state without touching identity of the handle.
func (o *Object) Replace(src *Object) {
	if src == o {
		return
	}
	src.mu.RLock()
	fields := maps.Clone(src.fields)
	id, created, updated := src.objectID, src.createdAt, src.updatedAt
	src.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields = fields
	o.objectID = id
	o.createdAt = created
	o.updatedAt = updated
	clear(o.dirty)
	clear(o.removed)
}

// restore populates server state without marking anything dirty.
func (o *Object) restore(id string, created, updated time.Time, fields map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objectID = id
	o.createdAt = created
	o.updatedAt = updated
	o.fields = fields
}

func (o *Object) GetString(key string) (string, error) {
	v, ok := o.Get(key)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, not string", ErrTypeMismatch, key, v)
	}
	return s, nil
}

func (o *Object) GetInt(key string) (int64, error) {
	v, ok := o.Get(key)
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%w: %s is fractional", ErrTypeMismatch, key)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: %s is %T, not number", ErrTypeMismatch, key, v)
}

func (o *Object) GetFloat(key string) (float64, error) {
	v, ok := o.Get(key)
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s is %T, not number", ErrTypeMismatch, key, v)
}

func (o *Object) GetBool(key string) (bool, error) {
	v, ok := o.Get(key)
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, not bool", ErrTypeMismatch, key, v)
	}
	return b, nil
}

func (o *Object) GetTime(key string) (time.Time, error) {
	v, ok := o.Get(key)
	if !ok {
		return time.Time{}, nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is %T, not date", ErrTypeMismatch, key, v)
	}
	return t, nil
}

func (o *Object) GetPointer(key string) (Pointer, error) {
	v, ok := o.Get(key)
	if !ok {
		return Pointer{}, nil
	}
	p, ok := v.(Pointer)
	if !ok {
		return Pointer{}, fmt.Errorf("%w: %s is %T, not pointer", ErrTypeMismatch, key, v)
	}
	return p, nil
}

// normalize folds Go numeric kinds into int64/float64 and dates into UTC
// milliseconds, the precision the backend keeps. Values the backend cannot
// store faithfully are rejected.
func normalize(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		return fromUint(uint64(n))
	case uint64:
		return fromUint(n)
	case float32:
		return float64(n), nil
	case time.Time:
		return n.UTC().Truncate(time.Millisecond), nil
	case *Object:
		if n == nil {
			return nil, fmt.Errorf("%w: nil *Object", ErrInvalidValue)
		}
		return checkPointer(n.Pointer())
	case *Pointer:
		if n == nil {
			return nil, fmt.Errorf("%w: nil *Pointer", ErrInvalidValue)
		}
		return checkPointer(*n)
	case Pointer:
		return checkPointer(n)
	case []any:
		out := make([]any, len(n))
		for i := range n {
			e, err := normalize(n[i])
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case []string:
		out := make([]any, len(n))
		for i := range n {
			out[i] = n[i]
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			ne, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	}
	return v, nil
}

func fromUint(n uint64) (any, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, n)
	}
	return int64(n), nil
}

func checkPointer(p Pointer) (any, error) {
	if p.ObjectID == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsavedPointer, p.ClassName)
	}
	if err := ValidateClassName(p.ClassName); err != nil {
		return nil, err
	}
	return p, nil
}

// Normalize converts v to the representation Set would store.
func Normalize(v any) (any, error) { return normalize(v) }
