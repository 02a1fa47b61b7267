package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := InitTracer("respipe-test", &buf, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"probe"`)
	assert.Contains(t, buf.String(), "respipe-test")
}
