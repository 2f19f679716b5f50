// Package schema derives backend class schemas from registered model types
// and publishes them to the _SCHEMA collection.
package schema

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/record"
)

// FieldType is a field type as spelled in the _SCHEMA collection. Pointers
// are "*" followed by the target class.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

func PointerTo(className string) FieldType { return FieldType("*" + className) }

func (t FieldType) IsPointer() bool { return strings.HasPrefix(string(t), "*") }

// Every class carries these regardless of the model.
var defaultFields = map[string]FieldType{
	"objectId":  TypeString,
	"createdAt": TypeDate,
	"updatedAt": TypeDate,
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	pointerType = reflect.TypeFor[record.Pointer]()
)

type Class struct {
	Name   string               `json:"name"`
	Fields map[string]FieldType `json:"fields"`
}

// FieldNames returns the class's own field names, sorted.
func (c Class) FieldNames() []string {
	return slices.Sorted(maps.Keys(c.Fields))
}

// Derive builds the schema of a model struct type.
func Derive(className string, typ reflect.Type) (Class, error) {
	if err := record.ValidateClassName(className); err != nil {
		return Class{}, err
	}
	bound, err := model.BoundFields(typ)
	if err != nil {
		return Class{}, err
	}

	c := Class{Name: className, Fields: make(map[string]FieldType, len(bound))}
	for _, f := range bound {
		ft, err := fieldType(f.Type, f.Class)
		if err != nil {
			return Class{}, fmt.Errorf("schema: %s.%s: %w", className, f.Key, err)
		}
		c.Fields[f.Key] = ft
	}
	return c, nil
}

// FromRegistry derives a schema for every class registered with a Go type.
// Factory-only registrations are skipped.
func FromRegistry(reg *model.Registry) ([]Class, error) {
	var classes []Class
	for _, name := range reg.Classes() {
		typ, ok := reg.Type(name)
		if !ok {
			continue
		}
		c, err := Derive(name, typ)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func fieldType(t reflect.Type, target string) (FieldType, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return TypeDate, nil
	case pointerType:
		if target == "" {
			return "", fmt.Errorf("pointer field needs a class tag")
		}
		if err := record.ValidateClassName(target); err != nil {
			return "", err
		}
		return PointerTo(target), nil
	}

	switch t.Kind() {
	case reflect.String:
		return TypeString, nil
	case reflect.Bool:
		return TypeBoolean, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber, nil
	case reflect.Slice, reflect.Array:
		return TypeArray, nil
	case reflect.Map, reflect.Interface:
		return TypeObject, nil
	}
	return "", fmt.Errorf("unsupported type %s", t)
}

// Conflict is a field whose stored type differs from the model.
type Conflict struct {
	Field string    `json:"field"`
	Want  FieldType `json:"want"`
	Have  FieldType `json:"have"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: model says %s, backend has %s", c.Field, c.Want, c.Have)
}

// Diff compares a class against the stored field types.
func Diff(c Class, stored map[string]FieldType) (missing []string, conflicts []Conflict) {
	for _, name := range c.FieldNames() {
		want := c.Fields[name]
		have, ok := stored[name]
		switch {
		case !ok:
			missing = append(missing, name)
		case have != want:
			conflicts = append(conflicts, Conflict{Field: name, Want: want, Have: have})
		}
	}
	return missing, conflicts
}
