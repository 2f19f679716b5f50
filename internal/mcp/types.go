package mcp

import (
	"github.com/drewjocham/parsemodel/schema"
)

type emptyArgs struct{}

type getObjectArgs struct {
	Class    string `json:"class" jsonschema:"The Parse class name, for example GameScore."`
	ObjectID string `json:"object_id" jsonschema:"The objectId of the object to fetch."`
}

type classSummary struct {
	Class  string                      `json:"class"`
	Typed  bool                        `json:"typed"`
	Fields map[string]schema.FieldType `json:"fields,omitempty"`
}

type classesOutput struct {
	Classes []classSummary `json:"classes"`
	Strict  bool           `json:"strict"`
}

type statusOutput struct {
	Classes []schema.Status `json:"classes"`
}

type objectOutput struct {
	Class  string         `json:"class"`
	Typed  bool           `json:"typed"`
	Object map[string]any `json:"object"`
}
