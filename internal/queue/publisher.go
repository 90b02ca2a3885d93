package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// Publisher sends booking notifications to RabbitMQ.  It implements
// service.Notifier.  The broker connection is opened on first use and
// re-opened after it drops; a publish failure is returned to the caller,
// which logs it and carries on.
type Publisher struct {
    url    string
    labels func(model.TimeSlot) string
    log    logrus.FieldLogger
    now    func() time.Time

    mu   sync.Mutex
    conn *amqp.Connection

    // send is swapped out in tests.
    send func(ctx context.Context, queue string, msg amqp.Publishing) error
}

// NewPublisher returns a Publisher for the broker at url.  labels maps a
// time slot to its display label.
func NewPublisher(url string, labels func(model.TimeSlot) string, log logrus.FieldLogger) *Publisher {
    p := &Publisher{
        url:    url,
        labels: labels,
        log:    log.WithField("component", "publisher"),
        now:    time.Now,
    }
    p.send = p.publish
    return p
}

// BookingConfirmed publishes the passenger confirmation for b.
func (p *Publisher) BookingConfirmed(ctx context.Context, b model.Booking) error {
    return p.emit(ctx, BookingConfirmedQueue, NewBookingConfirmedEvent(b, p.labels(b.TimeSlot), p.now()))
}

// AdminAlert publishes the operator alert for b.
func (p *Publisher) AdminAlert(ctx context.Context, b model.Booking) error {
    return p.emit(ctx, AdminAlertQueue, AdminAlertEvent{
        BookingConfirmedEvent: NewBookingConfirmedEvent(b, p.labels(b.TimeSlot), p.now()),
        Kind:                  "new_booking",
    })
}

func (p *Publisher) emit(ctx context.Context, queue string, event any) error {
    body, err := json.Marshal(event)
    if err != nil {
        return fmt.Errorf("marshal %s event: %w", queue, err)
    }
    msg := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    uuid.NewString(),
        Timestamp:    p.now().UTC(),
        Body:         body,
    }
    if err := p.send(ctx, queue, msg); err != nil {
        p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: publish failed")
        return err
    }
    p.log.WithFields(logrus.Fields{"queue": queue, "message_id": msg.MessageId}).Debug("rabbitmq: event published")
    return nil
}

func (p *Publisher) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
    conn, err := p.connection()
    if err != nil {
        return err
    }
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Idempotent; durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    // routing key = queue name on the default exchange
    return ch.PublishWithContext(ctx, "", queue, false, false, msg)
}

func (p *Publisher) connection() (*amqp.Connection, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn != nil && !p.conn.IsClosed() {
        return p.conn, nil
    }
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, fmt.Errorf("dial broker: %w", err)
    }
    p.conn = conn
    return conn, nil
}

// Close closes the broker connection, if one is open.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn == nil || p.conn.IsClosed() {
        return nil
    }
    return p.conn.Close()
}
