package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	received := make(chan string, 1)
	sub, err := b.Subscribe(context.Background(), "tally.turn.conv-1.state", func(msg *Message) []byte {
		received <- string(msg.Data)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	err = b.Publish(context.Background(), "tally.turn.conv-1.state", []byte("executing"))
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "executing", got)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryBusWildcards(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var mu sync.Mutex
	var subjects []string
	_, err := b.Subscribe(context.Background(), "tally.turn.*.state", func(msg *Message) []byte {
		mu.Lock()
		subjects = append(subjects, msg.Subject)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	_, err = b.Subscribe(context.Background(), "tally.>", func(msg *Message) []byte {
		mu.Lock()
		subjects = append(subjects, "deep:"+msg.Subject)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "tally.turn.conv-1.state", []byte("x")))
	require.NoError(t, b.Publish(context.Background(), "tally.confirmation.conv-1", []byte("y")))
	require.NoError(t, b.Publish(context.Background(), "other.subject", []byte("z")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(subjects) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, subjects, "tally.turn.conv-1.state")
	assert.Contains(t, subjects, "deep:tally.turn.conv-1.state")
	assert.Contains(t, subjects, "deep:tally.confirmation.conv-1")
}

func TestMemoryBusRequestReply(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Subscribe(context.Background(), "tally.confirmation.conv-1", func(msg *Message) []byte {
		return []byte("approve")
	})
	require.NoError(t, err)

	reply, err := b.Request(context.Background(), "tally.confirmation.conv-1", []byte("req"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "approve", string(reply))
}

func TestMemoryBusRequestNoResponders(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Request(context.Background(), "nobody.home", nil, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoResponders)
}

func TestMemoryBusRequestTimeout(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Subscribe(context.Background(), "slow.responder", func(msg *Message) []byte {
		return nil // never replies
	})
	require.NoError(t, err)

	_, err = b.Request(context.Background(), "slow.responder", nil, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "x", nil), ErrClosed)
	_, err := b.Subscribe(context.Background(), "x", func(*Message) []byte { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Close(), ErrClosed)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	received := make(chan struct{}, 10)
	sub, err := b.Subscribe(context.Background(), "x", func(*Message) []byte {
		received <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, b.Publish(context.Background(), "x", []byte("data")))
	select {
	case <-received:
		t.Fatal("unsubscribed handler still received message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.b.c", "a.b.d", false},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d", false},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.>", "a", false},
		{"tally.turn.*.state", "tally.turn.conv-9.state", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject),
			"pattern=%s subject=%s", tt.pattern, tt.subject)
	}
}

func TestTurnSubjectHelpers(t *testing.T) {
	assert.Equal(t, "tally.turn.conv-1.state", TurnSubject("conv-1", "state"))
	assert.Equal(t, "tally.confirmation.conv-1", ConfirmationSubject("conv-1"))
}
