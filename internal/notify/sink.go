package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink receives notifications. Implementations must be safe for concurrent
// use; Notify must not block for long.
type Sink interface {
	Notify(m Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Message)

func (f SinkFunc) Notify(m Message) { f(m) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Message) {})

// Multi fans a notification out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(m Message) {
		for _, s := range sinks {
			s.Notify(m)
		}
	})
}

// Writer prints console content to w, one line per message, and toasts
// prefixed with their severity. Clears are ignored.
func Writer(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc(func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case m.Action == Clear:
		case m.Container == Toast:
			fmt.Fprintf(w, "[%s] %s\n", m.Type, m.Text())
		default:
			fmt.Fprintln(w, m.Text())
		}
	})
}

// Logger records every notification at debug level, and toasts at a level
// matching their severity.
func Logger(log *slog.Logger) Sink {
	return SinkFunc(func(m Message) {
		level := slog.LevelDebug
		if m.Container == Toast {
			switch m.Type {
			case Warn:
				level = slog.LevelWarn
			case Error:
				level = slog.LevelError
			default:
				level = slog.LevelInfo
			}
		}
		log.Log(context.Background(), level, "notification",
			"container", m.Container.String(),
			"type", m.Type.String(),
			"action", m.Action.String(),
			"content", m.Text(),
		)
	})
}
