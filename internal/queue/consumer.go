package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// AttendanceLog appends one line per check-in to a file.  It is safe for
// concurrent use.
type AttendanceLog struct {
    mu   sync.Mutex
    path string
}

// NewAttendanceLog returns a log writing to dir/attendance.log.
func NewAttendanceLog(dir string) *AttendanceLog {
    if dir == "" {
        dir = "logs"
    }
    return &AttendanceLog{path: filepath.Join(dir, "attendance.log")}
}

// Path returns the file the log appends to.
func (l *AttendanceLog) Path() string { return l.path }

// Handle decodes an attendance.confirmed message body and appends it.
func (l *AttendanceLog) Handle(body []byte) error {
    var ev AttendanceConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.RecordID == "" || ev.RegistrantID == 0 {
        return errors.New("event missing record or registrant id")
    }

    l.mu.Lock()
    defer l.mu.Unlock()
    // Ensure logs directory exists
    if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    seat := "-"
    if ev.Enclosure != "" {
        seat = fmt.Sprintf("%s-%s-%d", ev.Enclosure, ev.Row, ev.Seat)
    }
    by := ev.ConfirmedBy
    if by == "" {
        by = "-"
    }
    line := fmt.Sprintf("[%s] Attendance confirmed | record_id=%s | registrant_id=%d | enrollment_id=%s | name=%q | method=%s | location=%q | confirmed_by=%s | seat=%s\n",
        ev.MarkedAt, ev.RecordID, ev.RegistrantID, ev.EnrollmentID, ev.FullName, ev.Method, ev.Location, by, seat)

    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// StartAttendanceConsumer connects to RabbitMQ, declares the
// attendance.confirmed queue (durable) and appends every message to the
// attendance log.  It reconnects with backoff until ctx is cancelled.
// Messages that cannot be handled are rejected without requeue so one
// bad payload cannot stall the queue.
func StartAttendanceConsumer(ctx context.Context, url string, sink *AttendanceLog, logger *slog.Logger) error {
    if logger == nil {
        logger = slog.Default()
    }
    log := logger.With(slog.String("consumer", AttendanceConfirmedQueue))

    backoff := time.Second
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.WarnContext(ctx, "failed to dial broker", slog.String("error", err.Error()), slog.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, sink, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.WarnContext(ctx, "consume loop ended, reconnecting", slog.String("error", fmt.Sprint(err)))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink *AttendanceLog, log *slog.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.WarnContext(ctx, "set QoS failed", slog.String("error", err.Error()))
    }

    _, err = ch.QueueDeclare(AttendanceConfirmedQueue, true, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(AttendanceConfirmedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := sink.Handle(d.Body); err != nil {
                log.WarnContext(ctx, "handle message failed", slog.String("error", err.Error()), slog.String("message_id", d.MessageId))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
