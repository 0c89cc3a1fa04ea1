// Package scenario drives a WebSocket client through a sequence of sends and
// expected receptions.
package scenario

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/overlap/messages"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeMsgSkip = "scenario-msg-skip"
)

// DefaultTimeout is the time a scenario waits for a message when its context
// has no deadline.
var DefaultTimeout = time.Second * 5

// Handler inspects a received message. Returning an error of type
// ErrTypeMsgSkip discards the message and waits for the next one.
type Handler func(messages.Msg) error

type step func(context.Context) error

type Scenario struct {
	conn  *websocket.Conn
	steps []step
}

func NewScenario(conn *websocket.Conn) *Scenario {
	return &Scenario{conn: conn}
}

// Send queues the sending of the message returned by f.
func (s *Scenario) Send(f func() messages.Message) *Scenario {
	s.steps = append(s.steps, func(ctx context.Context) error {
		m := f()

		msg, err := messages.MsgFromMessage(m)
		if err != nil {
			return err
		}

		if _, err := messages.Send(s.conn, msg); err != nil {
			return errors.New("sending message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}
		return nil
	})
	return s
}

// Receive queues the reception of the first message accepted by all the
// given handlers.
func (s *Scenario) Receive(handlers ...Handler) *Scenario {
	s.steps = append(s.steps, func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(DefaultTimeout)
		}

		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return err
		}
		defer s.conn.SetReadDeadline(time.Time{})

		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			msg, _, err := messages.Receive(s.conn)
			if err != nil {
				return errors.New("receiving message failed").Wrap(err)
			}

			err = handle(msg, handlers)
			if errors.IsType(err, ErrTypeMsgSkip) {
				continue
			}
			return err
		}
	})
	return s
}

// Run executes the steps in order and stops at the first failure.
func (s *Scenario) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step(ctx); err != nil {
			return errors.New("scenario step failed").
				WithTag("step", i).
				Wrap(err)
		}
	}
	return nil
}

func handle(msg messages.Msg, handlers []Handler) error {
	for _, h := range handlers {
		if err := h(msg); err != nil {
			return err
		}
	}
	return nil
}

// FilterByType skips the messages that are not of the given type.
func FilterByType(t messages.MsgType) Handler {
	return func(msg messages.Msg) error {
		if msg.Type != t {
			return skip(msg)
		}
		return nil
	}
}

// FilterByRequestID skips the messages that do not answer the given request.
func FilterByRequestID(id uint32) Handler {
	return func(msg messages.Msg) error {
		var h messages.Header
		if err := msg.DataTo(&h); err != nil {
			return err
		}

		if h.RequestID != id {
			return skip(msg)
		}
		return nil
	}
}

// Decode decodes an accepted message into v.
func Decode(v any) Handler {
	return func(msg messages.Msg) error {
		return msg.DataTo(v)
	}
}

func skip(msg messages.Msg) error {
	return errors.New("message skipped").
		WithType(ErrTypeMsgSkip).
		WithTag("msg_type", msg.Type)
}

// Unexpected returns an error reporting an unexpected message field value.
func Unexpected(field string, v any) error {
	return errors.New("unexpected message value").
		WithTag("field", field).
		WithTag("value", v)
}
