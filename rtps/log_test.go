package rtps

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	order := binary.BigEndian
	b := append(sn(0, 1).Bytes(order), appendUint32(order, nil, 300)...)
	b = append(b, make([]byte, 4*10)...)
	_, _, err := SeqNumSetFromBytes(order, b)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "clamping bitmap length from peer")
	assert.Contains(t, out, "num_bits=300")
}

func TestDefaultLoggerDiscards(t *testing.T) {
	SetLogger(nil)
	assert.False(t, logger().Enabled(context.Background(), slog.LevelError))
}
