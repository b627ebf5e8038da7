package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string, latest bool) effect {
	return effect{name: name, latest: latest, run: func(context.Context) {}}
}

func names(batch []effect) []string {
	out := make([]string, 0, len(batch))
	for _, e := range batch {
		out = append(out, e.name)
	}
	return out
}

func TestEffectQueue_CollapsesConsecutiveSnapshots(t *testing.T) {
	q := newEffectQueue()

	assert.False(t, q.push(named("mirror", true)))
	assert.True(t, q.push(named("mirror", true)))
	assert.False(t, q.push(named("poll.ended", false)))
	assert.False(t, q.push(named("mirror", true)), "a lifecycle effect in between keeps order")

	batch, ok := q.take()
	require.True(t, ok)
	assert.Equal(t, []string{"mirror", "poll.ended", "mirror"}, names(batch))
}

func TestEffectQueue_KeepsEveryLifecycleEffect(t *testing.T) {
	q := newEffectQueue()
	for range 500 {
		q.push(named("set_live", false))
		q.push(named("clear_live", false))
	}

	batch, ok := q.take()
	require.True(t, ok)
	assert.Len(t, batch, 1000)
	assert.Equal(t, "clear_live", batch[len(batch)-1].name)
}

func TestEffectQueue_DrainsBeforeStopping(t *testing.T) {
	q := newEffectQueue()
	q.push(named("poll.ended", false))
	q.close()
	assert.False(t, q.push(named("late", false)))

	batch, ok := q.take()
	require.True(t, ok)
	assert.Equal(t, []string{"poll.ended"}, names(batch))

	_, ok = q.take()
	assert.False(t, ok)
}
