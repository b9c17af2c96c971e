package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// RoutingKey is the topic under which final reports are published.
const RoutingKey = "session.report.ready"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Notifier publishes final reports to a topic exchange for the delivery
// service to pick up.
type Notifier struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch channel
}

type reportMessage struct {
	Type    string              `json:"type"`
	Payload domain.Notification `json:"payload"`
}

// NewNotifier dials url and declares a durable topic exchange.
func NewNotifier(url, exchange string) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Notifier{conn: conn, exchange: exchange, ch: ch}, nil
}

func (n *Notifier) Dispatch(ctx context.Context, notification domain.Notification) error {
	body, err := json.Marshal(reportMessage{Type: RoutingKey, Payload: notification})
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.ch.PublishWithContext(ctx,
		n.exchange,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    notification.Report.ID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish report %s: %w", notification.Report.ID, err)
	}
	log.Debug().
		Str("session_id", notification.Report.SessionID).
		Str("player_id", notification.Report.PlayerID).
		Msg("report published")
	return nil
}

func (n *Notifier) Close() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
}
