package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeardown_TriggerRunsInReverseOrder(t *testing.T) {
	td := NewTeardown(context.Background())

	var order []int
	td.Add(func() { order = append(order, 1) })
	td.Add(func() { order = append(order, 2) })
	td.Add(nil)
	td.Add(func() { order = append(order, 3) })

	assert.False(t, td.Triggered())
	assert.NoError(t, td.Context().Err())

	td.Trigger()
	td.Trigger()

	assert.Equal(t, []int{3, 2, 1}, order)
	assert.True(t, td.Triggered())
	assert.ErrorIs(t, td.Context().Err(), context.Canceled)
}

func TestTeardown_AddAfterTriggerRunsImmediately(t *testing.T) {
	td := NewTeardown(context.Background())
	td.Trigger()

	ran := false
	td.Add(func() { ran = true })

	assert.True(t, ran)
}

func TestTeardown_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	td := NewTeardown(parent)

	cancel()

	assert.Error(t, td.Context().Err())
	assert.False(t, td.Triggered(), "cancelling the parent does not run the hooks")
}
