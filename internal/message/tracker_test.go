package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyv/chatloom/internal/message"
)

func TestTrackerRegisterAssignsPositions(t *testing.T) {
	tr := message.NewTracker()

	pos, err := tr.Register("a")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = tr.Register("b")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	assert.True(t, tr.Registered("a"))
	assert.False(t, tr.Registered("c"))
}

func TestTrackerDuplicateRegister(t *testing.T) {
	tr := message.NewTracker()

	_, err := tr.Register("a")
	require.NoError(t, err)

	_, err = tr.Register("a")
	assert.ErrorIs(t, err, message.ErrDuplicateToolCall)
}

func TestTrackerResolve(t *testing.T) {
	tr := message.NewTracker()

	_, err := tr.Register("a")
	require.NoError(t, err)
	_, err = tr.Register("b")
	require.NoError(t, err)

	pos, err := tr.Resolve("b")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestTrackerResolveUnknown(t *testing.T) {
	tr := message.NewTracker()

	_, err := tr.Resolve("ghost")
	assert.ErrorIs(t, err, message.ErrUnknownToolCall)
}

func TestTrackerResolveTwice(t *testing.T) {
	tr := message.NewTracker()

	_, err := tr.Register("a")
	require.NoError(t, err)

	_, err = tr.Resolve("a")
	require.NoError(t, err)

	_, err = tr.Resolve("a")
	assert.ErrorIs(t, err, message.ErrAlreadyResolved)
}
