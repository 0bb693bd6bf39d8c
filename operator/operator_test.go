package operator

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalWaitReturnsOnEnter(t *testing.T) {
	var out bytes.Buffer
	gate := NewTerminal(strings.NewReader("\n"), &out)

	require.NoError(t, gate.Wait(context.Background(), "Solve the challenge, then press Enter"))
	assert.Contains(t, out.String(), "Solve the challenge")
}

func TestTerminalWaitHonoursCancellation(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	gate := NewTerminal(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, gate.Wait(ctx, "waiting"), context.DeadlineExceeded)
}

func TestChannelGate(t *testing.T) {
	gate := make(Channel, 1)
	gate <- struct{}{}
	require.NoError(t, gate.Wait(context.Background(), ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, gate.Wait(ctx, ""), context.Canceled)
}
