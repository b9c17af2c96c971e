package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Target receives relayed room traffic on the local instance.
type Target interface {
	Deliver(room string, data []byte)
	CloseLocal(room string)
}

type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Relay fans room events out to every instance through core NATS subjects:
//
//	<prefix>.events.<room>  marshalled event envelope
//	<prefix>.close.<room>   room shutdown, empty body
//
// All instances subscribe to <prefix>.> so one subscription keeps the
// publish order of events and closes for a room.
type Relay struct {
	conn   conn
	prefix string
	sub    *nats.Subscription
}

// Connect dials NATS with reconnect logging.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("quiz-live"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func NewRelay(nc *nats.Conn, prefix string) *Relay {
	return newRelay(nc, prefix)
}

func newRelay(c conn, prefix string) *Relay {
	if prefix == "" {
		prefix = "quiz.rooms"
	}
	return &Relay{conn: c, prefix: prefix}
}

func (r *Relay) Publish(_ context.Context, room string, data []byte) error {
	return r.conn.Publish(r.prefix+".events."+room, data)
}

func (r *Relay) PublishClose(_ context.Context, room string) error {
	return r.conn.Publish(r.prefix+".close."+room, nil)
}

// Attach subscribes target to the relayed traffic of all rooms.
func (r *Relay) Attach(target Target) error {
	sub, err := r.conn.Subscribe(r.prefix+".>", func(msg *nats.Msg) {
		r.dispatch(target, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", r.prefix, err)
	}
	r.sub = sub
	log.Info().Str("subject", r.prefix+".>").Msg("room relay attached")
	return nil
}

// Close drops the relay subscription.
func (r *Relay) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *Relay) dispatch(target Target, subject string, data []byte) {
	rest, ok := strings.CutPrefix(subject, r.prefix+".")
	if !ok {
		return
	}
	kind, room, ok := strings.Cut(rest, ".")
	if !ok || room == "" {
		return
	}
	switch kind {
	case "events":
		target.Deliver(room, data)
	case "close":
		target.CloseLocal(room)
	default:
		log.Debug().Str("subject", subject).Msg("ignoring relay message")
	}
}
