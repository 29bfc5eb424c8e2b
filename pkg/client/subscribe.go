package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/events"
)

const closeWriteTimeout = time.Second

// Subscription is a live telemetry subscription. It must be closed exactly
// once when the monitoring session ends; further Close calls are no-ops.
type Subscription struct {
	conn        *websocket.Conn
	onEvent     func(calibration.Telemetry)
	onScheduled func(events.CalibrationScheduledEvent)

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	err       error // set before done is closed

	delivered atomic.Int64
	dropped   atomic.Int64
}

// SubscribeOption configures a Subscription.
type SubscribeOption func(*Subscription)

// WithScheduledHandler calls fn for every "calibration-scheduled" event,
// on the same goroutine and in the same order as telemetry. Without it
// those events are ignored.
func WithScheduledHandler(fn func(events.CalibrationScheduledEvent)) SubscribeOption {
	return func(s *Subscription) { s.onScheduled = fn }
}

// Subscribe opens the controller event stream and calls onEvent for every
// valid "calibration-update" event, one at a time, in the order the
// controller sent them. Malformed payloads are logged and dropped.
//
// Cancelling ctx closes the subscription. onEvent must not call Close.
func (c *Client) Subscribe(ctx context.Context, onEvent func(calibration.Telemetry), opts ...SubscribeOption) (*Subscription, error) {
	if onEvent == nil {
		return nil, newError(ErrUnknown, "", pkgerrors.New("telemetry callback is nil"))
	}

	conn, err := c.Dial(ctx, "/events")
	if err != nil {
		return nil, classify(err, "subscribe to telemetry")
	}

	s := &Subscription{
		conn:    conn,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	logrus.WithField("topic", events.CalibrationUpdate).Debug("subscribed to telemetry")
	return s, nil
}

// Close tears the subscription down. When it returns, the callback is not
// running and will never be called again.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		if err := s.conn.Close(); err != nil {
			logrus.WithError(err).Debug("failed to close event stream")
		}
		<-s.done
		logrus.WithFields(logrus.Fields{
			"delivered": s.delivered.Load(),
			"dropped":   s.dropped.Load(),
		}).Debug("telemetry subscription closed")
	})
	return nil
}

// Done is closed once no further events will be delivered, either because
// the subscription was closed or the stream broke.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport error that ended the stream, if any. It is only
// meaningful after Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Dropped returns the number of malformed events dropped so far.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) readLoop() {
	defer close(s.done)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.err = newError(ErrTransport, pkgerrors.Wrap(err, "telemetry stream lost").Error(), err)
			logrus.WithError(err).Warn("telemetry stream lost")
			return
		}
		if s.closing.Load() {
			return
		}
		s.dispatch(msg)
	}
}

func (s *Subscription) dispatch(msg []byte) {
	var ev events.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		s.drop(err, msg)
		return
	}

	switch {
	case ev.Name == events.CalibrationUpdate:
		t, err := calibration.DecodeTelemetry(ev.Data)
		if err != nil {
			s.drop(err, ev.Data)
			return
		}
		s.deliver(ev.Name, func() { s.onEvent(t) })
	case ev.Name == events.CalibrationScheduled && s.onScheduled != nil:
		sch, err := events.DecodeAs[events.CalibrationScheduledEvent](ev)
		if err != nil {
			s.drop(err, ev.Data)
			return
		}
		s.deliver(ev.Name, func() { s.onScheduled(sch) })
	default:
		logrus.WithField("event", ev.Name).Debug("ignoring event")
	}
}

// deliver runs a callback, surviving a panic in it.
func (s *Subscription) deliver(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event": name,
				"panic": r,
			}).Error("event callback panicked")
		}
	}()
	s.delivered.Add(1)
	fn()
}

func (s *Subscription) drop(err error, raw []byte) {
	s.dropped.Add(1)
	logrus.WithError(newError(ErrMalformedEvent, pkgerrors.Wrap(err, ErrMalformedEvent.Error()).Error(), err)).
		WithField("payload", string(raw)).
		Warn("dropping telemetry event")
}

