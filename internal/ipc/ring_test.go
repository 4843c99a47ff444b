package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRing_NeverExceedsDeclaredCapacity(t *testing.T) {
	r := newMessageRing(3)
	for i := 0; i < 3; i++ {
		require.True(t, r.PushBack(Message{Kind: SmallMessage, Inline: []byte{byte(i)}}))
	}
	assert.False(t, r.PushBack(Message{Kind: SmallMessage}))
	assert.Equal(t, 3, r.Len())
}

func TestMessageRing_FIFOOrder(t *testing.T) {
	r := newMessageRing(4)
	for i := 0; i < 4; i++ {
		r.PushBack(Message{Kind: SmallMessage, Inline: []byte{byte(i)}})
	}
	for i := 0; i < 4; i++ {
		m, ok := r.PopFront()
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, m.Inline)
	}
	_, ok := r.PopFront()
	assert.False(t, ok)
}

func TestMessageRing_NonPowerOfTwoCapacityHonoured(t *testing.T) {
	r := newMessageRing(5)
	for i := 0; i < 5; i++ {
		require.True(t, r.PushBack(Message{}))
	}
	assert.False(t, r.PushBack(Message{}))
}

func TestMessageRing_WrapsAfterDrain(t *testing.T) {
	r := newMessageRing(2)
	require.True(t, r.PushBack(Message{Inline: []byte{1}}))
	require.True(t, r.PushBack(Message{Inline: []byte{2}}))
	m, _ := r.PopFront()
	assert.Equal(t, []byte{1}, m.Inline)
	require.True(t, r.PushBack(Message{Inline: []byte{3}}))

	m, _ = r.PopFront()
	assert.Equal(t, []byte{2}, m.Inline)
	m, _ = r.PopFront()
	assert.Equal(t, []byte{3}, m.Inline)
}
