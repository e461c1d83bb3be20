package milvus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpCtxAppliesConfiguredDeadline(t *testing.T) {
	c := &Client{timeout: 2 * time.Second}

	ctx, cancel := c.opCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok, "every call must carry a bounded deadline")
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, 100*time.Millisecond)
}

func TestOpCtxDefaultsWhenUnset(t *testing.T) {
	c := &Client{}

	ctx, cancel := c.opCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(defaultTimeout), deadline, 100*time.Millisecond)
}

func TestOpCtxKeepsShorterCallerDeadline(t *testing.T) {
	c := &Client{timeout: time.Minute}

	parent, parentCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer parentCancel()

	ctx, cancel := c.opCtx(parent)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 20*time.Millisecond)
}
