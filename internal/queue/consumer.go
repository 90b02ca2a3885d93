package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// Consumer delivers notifications.  Email delivery itself is outside this
// service: each event becomes one audit line in <dir>/notifications.log,
// which is what an outbound mail relay would pick up.
type Consumer struct {
    url string
    dir string
    log logrus.FieldLogger

    mu sync.Mutex // serializes writes to the audit file
}

// NewConsumer returns a Consumer writing under dir.
func NewConsumer(url, dir string, log logrus.FieldLogger) *Consumer {
    return &Consumer{url: url, dir: dir, log: log.WithField("component", "notification-consumer")}
}

// Run connects to the broker, consumes both notification queues and keeps
// reconnecting with backoff until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("failed to dial broker")
            if !sleep(ctx, backoff) {
                return
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            c.log.Info("notification consumer stopped")
            return
        }
        c.log.WithError(err).Warn("consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    select {
    case <-ctx.Done():
        return false
    case <-time.After(d):
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.WithError(err).Warn("set QoS failed")
    }

    merged := make(chan amqp.Delivery)
    var wg sync.WaitGroup
    for _, q := range []string{BookingConfirmedQueue, AdminAlertQueue} {
        if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", q, err)
        }
        msgs, err := ch.Consume(q, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("queue consume %s: %w", q, err)
        }
        wg.Add(1)
        go func(msgs <-chan amqp.Delivery) {
            defer wg.Done()
            for d := range msgs {
                select {
                case merged <- d:
                case <-ctx.Done():
                    return
                }
            }
        }(msgs)
    }
    go func() { wg.Wait(); close(merged) }()

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-merged:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.RoutingKey, d.Body); err != nil {
                c.log.WithError(err).WithField("queue", d.RoutingKey).Error("handle message failed")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle writes the audit line for one message received on queue.
func (c *Consumer) Handle(queue string, body []byte) error {
    line, err := formatLine(queue, body)
    if err != nil {
        return err
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    if err := os.MkdirAll(c.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.dir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(queue string, body []byte) (string, error) {
    switch queue {
    case BookingConfirmedQueue:
        var ev BookingConfirmedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Booking confirmation sent | to=%s | booking=%s | passenger=%q | date=%s | slot=%q | seat=%d | total=%d cents\n",
            ev.ConfirmedAt, ev.PassengerEmail, ev.BookingCode, ev.PassengerName, ev.TravelDate, ev.SlotLabel, ev.SeatNumber, ev.AmountCents), nil
    case AdminAlertQueue:
        var ev AdminAlertEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Admin alert %s | booking=%s | passenger=%q <%s> | date=%s | slot=%q | seat=%d | total=%d cents\n",
            ev.ConfirmedAt, ev.Kind, ev.BookingCode, ev.PassengerName, ev.PassengerEmail, ev.TravelDate, ev.SlotLabel, ev.SeatNumber, ev.AmountCents), nil
    }
    return "", fmt.Errorf("unknown queue %q", queue)
}
