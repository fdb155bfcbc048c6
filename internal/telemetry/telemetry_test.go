package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	tel, err := New(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_EnabledRequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), &Config{Enabled: true}, zap.NewNop())
	assert.Error(t, err)
}
