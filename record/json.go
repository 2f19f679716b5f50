package record

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// ISOFormat is the timestamp layout of the Parse REST API.
const ISOFormat = "2006-01-02T15:04:05.000Z"

var ErrInvalidJSON = errors.New("record: invalid JSON")

// MarshalJSON renders the record in the Parse REST shape.
func (o *Object) MarshalJSON() ([]byte, error) {
	o.mu.RLock()
	out := make(map[string]any, len(o.fields)+4)
	out["className"] = o.className
	if o.objectID != "" {
		out["objectId"] = o.objectID
	}
	if !o.createdAt.IsZero() {
		out["createdAt"] = o.createdAt.UTC().Format(ISOFormat)
	}
	if !o.updatedAt.IsZero() {
		out["updatedAt"] = o.updatedAt.UTC().Format(ISOFormat)
	}
	for k, v := range o.fields {
		out[k] = jsonValue(v)
	}
	o.mu.RUnlock()

	return sonic.ConfigStd.Marshal(out)
}

func jsonValue(v any) any {
	switch n := v.(type) {
	case time.Time:
		return map[string]any{typeKey: typeDate, "iso": n.UTC().Format(ISOFormat)}
	case Pointer:
		return map[string]any{typeKey: typePointer, "className": n.ClassName, "objectId": n.ObjectID}
	case []any:
		out := make([]any, len(n))
		for i := range n {
			out[i] = jsonValue(n[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = jsonValue(e)
		}
		return out
	}
	return v
}

// FromJSON parses a record in the Parse REST shape. The payload must carry
// a className.
func FromJSON(raw []byte) (*Object, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidJSON)
	}

	o, err := New(root.Get("className").String())
	if err != nil {
		return nil, err
	}

	var (
		id               string
		created, updated time.Time
		fields           = make(map[string]any)
		parseErr         error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch k {
		case "className", "ACL":
		case "objectId":
			id = value.String()
		case "createdAt":
			created, parseErr = parseISO(value.String())
		case "updatedAt":
			updated, parseErr = parseISO(value.String())
		default:
			if parseErr = ValidateKey(k); parseErr != nil {
				return false
			}
			fields[k], parseErr = fromGJSON(value)
		}
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}

	o.restore(id, created, updated, fields)
	return o, nil
}

func parseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidJSON, s)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

func fromGJSON(v gjson.Result) (any, error) {
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.True, gjson.False:
		return v.Bool(), nil
	case gjson.String:
		return v.String(), nil
	case gjson.Number:
		if strings.ContainsAny(v.Raw, ".eE") {
			return v.Float(), nil
		}
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return n, nil
		}
		// Integers beyond int64 keep their magnitude as float64.
		return v.Float(), nil
	}

	if v.IsArray() {
		items := v.Array()
		out := make([]any, len(items))
		for i := range items {
			e, err := fromGJSON(items[i])
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}

	switch v.Get(typeKey).String() {
	case typeDate:
		return parseISO(v.Get("iso").String())
	case typePointer:
		p := Pointer{
			ClassName: v.Get("className").String(),
			ObjectID:  v.Get("objectId").String(),
		}
		if _, err := checkPointer(p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		return p, nil
	}

	out := make(map[string]any)
	var err error
	v.ForEach(func(key, value gjson.Result) bool {
		out[key.String()], err = fromGJSON(value)
		return err == nil
	})
	return out, err
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
