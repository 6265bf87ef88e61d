package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeReceivesEventsInOrder(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	bus.Emit(ctx, Event{Type: EventTypePersonaChanged, PersonaID: "p1"})
	bus.Emit(ctx, Event{Type: EventTypeSendSucceeded, PersonaID: "p1", Text: "hello!"})

	var got []Event
	for len(got) < 2 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}
	require.Equal(t, EventTypePersonaChanged, got[0].Type)
	require.Equal(t, EventTypeSendSucceeded, got[1].Type)
	require.Equal(t, "hello!", got[1].Text)
}

func TestBus_EmitWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	done := make(chan struct{})
	go func() {
		bus.Emit(context.Background(), Event{Type: EventTypeNotice, Text: "Chat is already empty!"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked without subscribers")
	}
}

func TestBus_EmitWaitsForLaggingSubscriber(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	const n = 4 * subscriberBuffer
	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			bus.Emit(ctx, Event{Type: EventTypeNotice, Text: fmt.Sprintf("%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Emit did not wait for the lagging subscriber")
	case <-time.After(200 * time.Millisecond):
	}

	for i := 0; i < n; i++ {
		select {
		case e := <-ch:
			require.Equal(t, fmt.Sprintf("%d", i), e.Text)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out at event %d", i)
		}
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit still blocked after the subscriber caught up")
	}
}

func TestRecorder_OfType(t *testing.T) {
	r := &Recorder{}
	m := MultiEmitter{r, NopEmitter{}, nil}
	m.Emit(context.Background(), Event{Type: EventTypeNotice})
	m.Emit(context.Background(), Event{Type: EventTypeSendFailed})
	m.Emit(context.Background(), Event{Type: EventTypeNotice})

	require.Len(t, r.Events(), 3)
	require.Len(t, r.OfType(EventTypeNotice), 2)
	require.Len(t, r.OfType(EventTypeHistoryCleared), 0)
}
