package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

const (
	EventsExchange          = "storefront.events"
	CouponAppliedRoutingKey = "coupon.applied.v1"
	couponAppliedEventType  = "CouponApplied"
	publishTimeout          = 3 * time.Second
)

// CouponApplied is emitted when a shopper applies a coupon or one is auto-applied.
// Background replays do not emit it.
type CouponApplied struct {
	EventID        string          `json:"eventId"`
	EventType      string          `json:"eventType"`
	Code           string          `json:"code"`
	DiscountType   string          `json:"discountType"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	NewSubtotal    decimal.Decimal `json:"newSubtotal"`
	Currency       string          `json:"currency"`
	UserIdentifier string          `json:"userIdentifier,omitempty"`
	AutoApplied    bool            `json:"autoApplied"`
	AppliedCodes   []string        `json:"appliedCodes"`
	Timestamp      time.Time       `json:"timestamp"`
}

type Publisher interface {
	PublishCouponApplied(ctx context.Context, ev CouponApplied) error
}

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPPublisher struct {
	ch  channel
	now func() time.Time
}

// NewAMQPPublisher opens a channel on conn and declares the events exchange.
func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	return newPublisher(ch)
}

func newPublisher(ch channel) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrapf(err, "declare %s", EventsExchange)
	}
	return &AMQPPublisher{ch: ch, now: time.Now}, nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

func (p *AMQPPublisher) PublishCouponApplied(ctx context.Context, ev CouponApplied) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.EventType = couponAppliedEventType
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now().UTC()
	}
	if ev.AppliedCodes == nil {
		ev.AppliedCodes = []string{}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal CouponApplied")
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx, EventsExchange, CouponAppliedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    ev.Timestamp,
		Type:         couponAppliedEventType,
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", CouponAppliedRoutingKey)
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishCouponApplied(context.Context, CouponApplied) error { return nil }
