package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Options{ServiceName: "consult-api"}, nil)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
