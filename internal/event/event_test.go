package event

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

func TestNew_WithPoll(t *testing.T) {
	g := model.Group{ID: "g1", Code: "ABC"}
	p, err := model.NewPoll("live-1", model.StartSpec{Text: "Q", Type: model.MultipleChoice, Options: []string{"x", "y"}}, time.Now())
	require.NoError(t, err)
	p, err = p.Answer("u1", model.Choice{Letter: "A"})
	require.NoError(t, err)

	a := New(PollAnswered, g).WithPoll(p)
	b := New(PollAnswered, g)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "g1", a.GroupID)
	assert.Equal(t, "ABC", a.GroupCode)
	assert.Equal(t, "live-1", a.LivePollID)
	assert.Equal(t, 1, a.Responses)
	assert.Equal(t, map[string]int{"A": 1, "B": 0}, a.Tallies)
}

func TestKafka_RoundTrip(t *testing.T) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}
	list := strings.Split(brokers, ",")
	topic := "poll-events-test"

	pub, err := NewKafkaPublisher(list, topic)
	require.NoError(t, err)
	defer pub.Close()

	ev := New(PollStarted, model.Group{ID: "g-test", Code: "TEST"})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, pub.Publish(ctx, ev))

	cons, err := NewKafkaConsumer(list, topic, "test-"+ev.ID, nil)
	require.NoError(t, err)
	defer cons.Close()

	for {
		got, err := cons.ReadEvent(ctx)
		require.NoError(t, err)
		if got.ID == ev.ID {
			assert.Equal(t, PollStarted, got.Type)
			return
		}
	}
}

func TestNewKafka_NoBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "t")
	assert.Error(t, err)
	_, err = NewKafkaConsumer(nil, "t", "g", nil)
	assert.Error(t, err)
}
