package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/drewjocham/parsemodel/record"
)

const (
	tagName      = "parse"
	classTagName = "class"
)

var ErrValidation = errors.New("model: validation failed")

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	modelType   = reflect.TypeFor[Model]()
	timeType    = reflect.TypeFor[time.Time]()
	pointerType = reflect.TypeFor[record.Pointer]()

	fieldCache sync.Map // reflect.Type -> []Field
)

// Field describes one struct field bound to a record key.
type Field struct {
	Key       string
	Name      string
	Index     []int
	Type      reflect.Type
	Class     string // pointer target, from the `class` tag
	OmitEmpty bool
}

// BoundFields lists the `parse`-tagged fields of a struct type.
func BoundFields(typ reflect.Type) ([]Field, error) {
	if cached, ok := fieldCache.Load(typ); ok {
		return cached.([]Field), nil
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model: %s is not a struct", typ)
	}

	var fields []Field
	seen := make(map[string]string)
	for i := range typ.NumField() {
		sf := typ.Field(i)
		if sf.Anonymous && (sf.Type == modelType || sf.Type == reflect.PointerTo(modelType)) {
			continue
		}
		tag := sf.Tag.Get(tagName)
		if tag == "" || tag == "-" {
			continue
		}
		key, opts, _ := strings.Cut(tag, ",")
		if !sf.IsExported() {
			return nil, fmt.Errorf("model: %s.%s is tagged but unexported", typ.Name(), sf.Name)
		}
		if err := record.ValidateKey(key); err != nil {
			return nil, fmt.Errorf("model: %s.%s: %w", typ.Name(), sf.Name, err)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("model: %s: key %q bound to both %s and %s", typ.Name(), key, prev, sf.Name)
		}
		if !supported(sf.Type) {
			return nil, fmt.Errorf("model: %s.%s: unsupported type %s", typ.Name(), sf.Name, sf.Type)
		}
		seen[key] = sf.Name
		fields = append(fields, Field{
			Key:       key,
			Name:      sf.Name,
			Index:     sf.Index,
			Type:      sf.Type,
			Class:     sf.Tag.Get(classTagName),
			OmitEmpty: strings.Contains(opts, "omitempty"),
		})
	}

	fieldCache.Store(typ, fields)
	return fields, nil
}

func supported(t reflect.Type) bool {
	if t == timeType || t == pointerType {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Interface:
		return true
	case reflect.Slice, reflect.Array:
		return supported(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && supported(t.Elem())
	case reflect.Pointer:
		return supported(t.Elem())
	}
	return false
}

func structValue(w Wrapper) (reflect.Value, *record.Object, error) {
	if w == nil {
		return reflect.Value{}, nil, ErrNilObject
	}
	obj := w.ParseObject()
	if obj == nil {
		return reflect.Value{}, nil, ErrNotInitialized
	}
	rv := reflect.ValueOf(w)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w: %T is not a struct pointer", ErrInvalidArgument, w)
	}
	return rv.Elem(), obj, nil
}

// Refresh copies the wrapped record's fields into w's bound struct fields.
// Fields absent from the record are zeroed.
func Refresh(w Wrapper) error {
	sv, obj, err := structValue(w)
	if err != nil {
		return err
	}
	fields, err := BoundFields(sv.Type())
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	data := obj.Fields()
	input := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := data[f.Key]
		if !ok || v == nil {
			sv.FieldByIndex(f.Index).SetZero()
			continue
		}
		input[f.Key] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tagName,
		Result:           w,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("model: refresh %s: %w", obj.ClassName(), err)
	}
	return nil
}

// Flush validates w and writes its bound struct fields into the wrapped
// record. Only changed values are marked dirty.
func Flush(w Wrapper) error {
	sv, obj, err := structValue(w)
	if err != nil {
		return err
	}
	fields, err := BoundFields(sv.Type())
	if err != nil {
		return err
	}

	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrValidation, obj.ClassName(), err)
	}

	for _, f := range fields {
		fv := sv.FieldByIndex(f.Index)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				obj.Remove(f.Key)
				continue
			}
			fv = fv.Elem()
		}
		if (f.OmitEmpty || fv.Type() == pointerType) && fv.IsZero() {
			obj.Remove(f.Key)
			continue
		}

		v, err := record.Normalize(fv.Interface())
		if err != nil {
			return fmt.Errorf("model: %s.%s: %w", obj.ClassName(), f.Key, err)
		}
		if cur, ok := obj.Get(f.Key); ok && sameValue(cur, v) {
			continue
		}
		if err := obj.Set(f.Key, v); err != nil {
			return err
		}
	}
	return nil
}

// Values returns w's bound fields keyed by their record keys, in the form
// Flush would store them. Fields Flush would remove are left out.
func Values(w Wrapper) (map[string]any, error) {
	sv, _, err := structValue(w)
	if err != nil {
		return nil, err
	}
	fields, err := BoundFields(sv.Type())
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv := sv.FieldByIndex(f.Index)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		if (f.OmitEmpty || fv.Type() == pointerType) && fv.IsZero() {
			continue
		}
		v, err := record.Normalize(fv.Interface())
		if err != nil {
			return nil, fmt.Errorf("model: %s: %w", f.Key, err)
		}
		out[f.Key] = v
	}
	return out, nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
