package gateway_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

func TestInt64AcceptsStoreRepresentations(t *testing.T) {
	attrs := map[string]any{
		"int":     7,
		"int64":   int64(8),
		"float":   float64(9),
		"string":  "10",
		"number":  json.Number("11"),
		"null":    nil,
		"garbage": "ten",
		"bool":    true,
	}

	for name, want := range map[string]int64{"int": 7, "int64": 8, "float": 9, "string": 10, "number": 11} {
		got, ok, err := gateway.Int64(attrs, name)
		require.NoError(t, err, name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok, err := gateway.Int64(attrs, "null")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = gateway.Int64(attrs, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = gateway.Int64(attrs, "garbage")
	assert.Error(t, err)

	_, _, err = gateway.Int64(attrs, "bool")
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	attrs := map[string]any{"s": "x", "n": 3, "null": nil}
	assert.Equal(t, "x", gateway.String(attrs, "s"))
	assert.Equal(t, "3", gateway.String(attrs, "n"))
	assert.Equal(t, "", gateway.String(attrs, "null"))
	assert.Equal(t, "", gateway.String(attrs, "absent"))
}

func TestErrorHelpers(t *testing.T) {
	err := gateway.NotFoundError(gateway.Orders, 7)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Contains(t, err.Error(), "orders id 7")

	cause := errors.New("connection reset")
	err = gateway.RemoteError("query orders", cause)
	assert.ErrorIs(t, err, gateway.ErrRemote)
	assert.ErrorIs(t, err, cause)
}

func TestCloneIsIndependent(t *testing.T) {
	src := map[string]any{"a": 1}
	dst := gateway.Clone(src)
	dst["a"] = 2
	assert.Equal(t, 1, src["a"])
}
