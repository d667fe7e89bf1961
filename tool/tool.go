package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

type Choice string

const (
	ChoiceAuto     Choice = "auto"
	ChoiceNone     Choice = "none"
	ChoiceRequired Choice = "required"
)

const TypeFunction = "function"

// Definition is the schema of a tool as published in the session config.
type Definition struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Handler executes a tool call. args holds the decoded call arguments; the
// returned value must be JSON serializable.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Func adapts a plain function without context or error.
func Func(fn func(args map[string]any) any) Handler {
	return func(_ context.Context, args map[string]any) (any, error) {
		return fn(args), nil
	}
}

// Object returns an object schema with the given properties and required keys.
func Object(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if properties == nil {
		properties = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// New builds a definition whose parameter schema is derived from T and a
// handler that decodes the call arguments into T.
func New[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) (Definition, Handler, error) {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return Definition{}, nil, fmt.Errorf("derive schema for %s: %w", name, err)
	}

	def := Definition{
		Type:        TypeFunction,
		Name:        name,
		Description: description,
		Parameters:  schema,
	}

	h := func(ctx context.Context, args map[string]any) (any, error) {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return fn(ctx, v)
	}

	return def, h, nil
}
