package streaming

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerPublishSubscribe(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("sess-1", 8)
	defer m.Unsubscribe("sess-1", ch)

	m.Publish("sess-1", Event{EventType: TypeProgress, Message: "working"})

	select {
	case evt := <-ch:
		assert.Equal(t, "sess-1", evt.SessionID)
		assert.Equal(t, TypeProgress, evt.EventType)
		assert.Equal(t, uint64(0), evt.Seq)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestManagerSequenceNumbers(t *testing.T) {
	m := NewManager(16)
	for i := 0; i < 5; i++ {
		m.Publish("sess-1", Event{EventType: TypeProgress, Message: fmt.Sprintf("step %d", i)})
	}
	// An unrelated session has its own sequence space.
	m.Publish("sess-2", Event{EventType: TypeProgress})

	events := m.ReplaySince("sess-1", 0)
	require.Len(t, events, 4, "since is exclusive")
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}

	assert.Empty(t, m.ReplaySince("sess-2", 0))
}

func TestManagerReplayAfterTheFact(t *testing.T) {
	m := NewManager(16)
	m.Publish("sess-1", Event{EventType: TypeProgress, Message: "one"})
	m.Publish("sess-1", Event{EventType: TypeProgress, Message: "two"})
	m.Publish("sess-1", Event{EventType: TypeComplete, Completed: true})

	// A late subscriber catches up from a known sequence number.
	events := m.ReplaySince("sess-1", 0)
	require.Len(t, events, 2)
	assert.Equal(t, "two", events[0].Message)
	assert.Equal(t, TypeComplete, events[1].EventType)

	assert.Nil(t, m.ReplaySince("unknown-session", 0))
}

func TestManagerRingEviction(t *testing.T) {
	m := NewManager(4)
	for i := 0; i < 10; i++ {
		m.Publish("sess-1", Event{EventType: TypeProgress, Message: fmt.Sprintf("step %d", i)})
	}

	events := m.ReplaySince("sess-1", 0)
	require.Len(t, events, 4, "only the newest capacity events survive")
	assert.Equal(t, uint64(6), events[0].Seq)
	assert.Equal(t, uint64(9), events[3].Seq)
}

func TestManagerSlowSubscriberDrops(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("sess-1", 1)
	defer m.Unsubscribe("sess-1", ch)

	// Publishing past a full buffer must not block.
	done := make(chan struct{})
	go func() {
		m.Publish("sess-1", Event{Message: "one"})
		m.Publish("sess-1", Event{Message: "two"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

type captureMirror struct {
	events []Event
}

func (c *captureMirror) Publish(sessionID string, evt Event) {
	c.events = append(c.events, evt)
}

func TestManagerMirrors(t *testing.T) {
	m := NewManager(16)
	mirror := &captureMirror{}
	m.AddMirror(mirror)

	m.Publish("sess-1", Event{EventType: TypeProgress})
	m.Publish("sess-1", Event{EventType: TypeComplete})

	require.Len(t, mirror.events, 2)
	assert.Equal(t, TypeComplete, mirror.events[1].EventType)
	assert.Equal(t, "sess-1", mirror.events[1].SessionID)
}

func TestEventMarshal(t *testing.T) {
	stage := 2
	evt := Event{
		SessionID: "sess-1",
		EventType: TypeProgress,
		Stage:     &stage,
		Progress:  &Progress{Percent: 42, CurrentStep: "Researching: Background"},
		Seq:       7,
	}
	b := evt.Marshal()
	assert.Contains(t, string(b), `"eventType":"progress"`)
	assert.Contains(t, string(b), `"percent":42`)
	assert.Contains(t, string(b), `"seq":7`)
}
