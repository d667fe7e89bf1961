package tool

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, map[string]any) (any, error) { return nil, nil }

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()

	_, err := r.Add(Definition{Name: "get_time", Description: "first"}, noop)
	require.NoError(t, err)

	_, err = r.Add(Definition{Name: "get_time", Description: "second"}, noop)
	require.ErrorIs(t, err, ErrDuplicate)

	got, ok := r.Get("get_time")
	require.True(t, ok)
	assert.Equal(t, "first", got.Definition.Description)
	assert.Equal(t, TypeFunction, got.Definition.Type)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	_, err := r.Add(Definition{}, noop)
	require.ErrorIs(t, err, ErrMissingName)

	_, err = r.Add(Definition{Name: "x"}, nil)
	require.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestRegistryDefinitionsOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		_, err := r.Add(Definition{Name: name, Parameters: Object(map[string]*jsonschema.Schema{
			"q": {Type: "string"},
		}, "q")}, noop)
		require.NoError(t, err)
	}

	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

type weatherArgs struct {
	Location string `json:"location"`
	Days     int    `json:"days,omitempty"`
}

func TestNewDerivesSchemaAndDecodes(t *testing.T) {
	def, h, err := New("get_weather", "Weather lookup", func(_ context.Context, a weatherArgs) (any, error) {
		return map[string]any{"location": a.Location, "days": a.Days}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "get_weather", def.Name)
	require.NotNil(t, def.Parameters)
	assert.Contains(t, def.Parameters.Properties, "location")

	res, err := h(context.Background(), map[string]any{"location": "Berlin", "days": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"location": "Berlin", "days": 3}, res)
}

func TestFunc(t *testing.T) {
	h := Func(func(args map[string]any) any { return args["v"] })
	res, err := h(context.Background(), map[string]any{"v": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}
