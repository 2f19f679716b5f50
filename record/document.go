package record

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Parse Server's MongoDB storage layout.
const (
	DocKeyID        = "_id"
	DocKeyCreatedAt = "_created_at"
	DocKeyUpdatedAt = "_updated_at"
	PointerPrefix   = "_p_"

	typeKey     = "__type"
	typePointer = "Pointer"
	typeDate    = "Date"
)

// ToDocument renders the record in Parse Server's Mongo layout. Top-level
// pointers are stored as "_p_<key>": "Class$objectId".
func (o *Object) ToDocument() bson.D {
	o.mu.RLock()
	defer o.mu.RUnlock()

	doc := make(bson.D, 0, len(o.fields)+3)
	if o.objectID != "" {
		doc = append(doc, bson.E{Key: DocKeyID, Value: o.objectID})
	}
	if !o.createdAt.IsZero() {
		doc = append(doc, bson.E{Key: DocKeyCreatedAt, Value: o.createdAt})
	}
	if !o.updatedAt.IsZero() {
		doc = append(doc, bson.E{Key: DocKeyUpdatedAt, Value: o.updatedAt})
	}
	for _, k := range sortedKeys(o.fields) {
		key, val := DocumentEntry(k, o.fields[k])
		doc = append(doc, bson.E{Key: key, Value: val})
	}
	return doc
}

// DocumentEntry maps one field to its stored key and value.
func DocumentEntry(key string, v any) (string, any) {
	if p, ok := v.(Pointer); ok {
		return PointerPrefix + key, p.String()
	}
	return key, documentValue(v)
}

func documentValue(v any) any {
	switch n := v.(type) {
	case Pointer:
		return bson.M{typeKey: typePointer, "className": n.ClassName, "objectId": n.ObjectID}
	case []any:
		out := make(bson.A, len(n))
		for i := range n {
			out[i] = documentValue(n[i])
		}
		return out
	case map[string]any:
		out := make(bson.M, len(n))
		for k, e := range n {
			out[k] = documentValue(e)
		}
		return out
	}
	return v
}

// FromDocument builds a record from a stored document. Internal columns
// other than the timestamps (ACL permissions, hashed passwords) are dropped.
func FromDocument(className string, doc bson.M) (*Object, error) {
	o, err := New(className)
	if err != nil {
		return nil, err
	}

	var id string
	switch v := doc[DocKeyID].(type) {
	case string:
		id = v
	case bson.ObjectID:
		id = v.Hex()
	case nil:
	default:
		return nil, fmt.Errorf("record: unsupported _id type %T", v)
	}

	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		switch {
		case k == DocKeyID || k == DocKeyCreatedAt || k == DocKeyUpdatedAt:
			continue
		case strings.HasPrefix(k, PointerPrefix):
			p, err := parsePointer(v)
			if err != nil {
				return nil, fmt.Errorf("record: field %s: %w", k, err)
			}
			fields[strings.TrimPrefix(k, PointerPrefix)] = p
		case strings.HasPrefix(k, "_"):
			continue
		default:
			fields[k] = fromBSON(v)
		}
	}

	o.restore(id, asTime(doc[DocKeyCreatedAt]), asTime(doc[DocKeyUpdatedAt]), fields)
	return o, nil
}

func parsePointer(v any) (Pointer, error) {
	s, ok := v.(string)
	if !ok {
		return Pointer{}, fmt.Errorf("pointer is %T, not string", v)
	}
	class, id, ok := strings.Cut(s, "$")
	if !ok || class == "" || id == "" {
		return Pointer{}, fmt.Errorf("malformed pointer %q", s)
	}
	return Pointer{ClassName: class, ObjectID: id}, nil
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}

func fromBSON(v any) any {
	switch n := v.(type) {
	case bson.DateTime:
		return n.Time().UTC()
	case time.Time:
		return n.UTC()
	case int32:
		return int64(n)
	case bson.ObjectID:
		return n.Hex()
	case bson.A:
		out := make([]any, len(n))
		for i := range n {
			out[i] = fromBSON(n[i])
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i := range n {
			out[i] = fromBSON(n[i])
		}
		return out
	case bson.D:
		m := make(map[string]any, len(n))
		for _, e := range n {
			m[e.Key] = e.Value
		}
		return fromBSONMap(m)
	case bson.M:
		return fromBSONMap(n)
	case map[string]any:
		return fromBSONMap(n)
	}
	return v
}

func fromBSONMap(m map[string]any) any {
	if m[typeKey] == typePointer {
		class, _ := m["className"].(string)
		id, _ := m["objectId"].(string)
		return Pointer{ClassName: class, ObjectID: id}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromBSON(v)
	}
	return out
}
