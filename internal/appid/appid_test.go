package appid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsCopy(t *testing.T) {
	first, err := Get(context.Background())
	require.NoError(t, err)
	first.BinaryName = "mutated"

	second, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "intake", second.BinaryName)
	assert.Equal(t, "INTAKE_", second.Prefix())
}

func TestPrefixAddsUnderscore(t *testing.T) {
	id := &Identity{EnvPrefix: "CUSTOM"}
	assert.Equal(t, "CUSTOM_", id.Prefix())

	var empty *Identity
	assert.Equal(t, "INTAKE_", empty.Prefix())
}
