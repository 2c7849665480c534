package session

import (
	"sync"

	"github.com/arkadyv/chatloom/internal/message"
)

// Stream is the observable handle for one in-flight assistant turn.
// Updates carries every published snapshot while the consumer keeps up;
// a slow consumer misses intermediate snapshots but Message always returns
// the latest one. Done closes once the message is frozen and handed off.
type Stream struct {
	updates chan message.Message
	done    chan struct{}

	mu     sync.Mutex
	latest message.Message
}

func newStream() *Stream {
	return &Stream{
		updates: make(chan message.Message, 64),
		done:    make(chan struct{}),
	}
}

// Updates returns the snapshot feed. The channel closes on terminal state.
func (st *Stream) Updates() <-chan message.Message {
	return st.updates
}

// Message returns the most recent snapshot.
func (st *Stream) Message() message.Message {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.latest
}

// Done closes once the message reached a terminal state and was handed to
// the finish hook.
func (st *Stream) Done() <-chan struct{} {
	return st.done
}

func (st *Stream) publish(m message.Message) {
	st.mu.Lock()
	st.latest = m
	st.mu.Unlock()

	select {
	case st.updates <- m:
	default:
		// Consumer lagging; it will catch up via Message.
	}
}

func (st *Stream) close() {
	close(st.updates)
	close(st.done)
}
