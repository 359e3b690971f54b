package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/events"
	"github.com/vadiminshakov/watchtower/internal/metrics"
	"github.com/vadiminshakov/watchtower/pkg/retrier"
	"go.uber.org/zap"
)

const (
	KindPosition   = "position"
	KindMovement   = "movement"
	KindAlert      = "alert"
	KindReport     = "report"
	KindDiagnostic = "diagnostic"
)

type publisher interface {
	Publish(e events.Event)
}

// Service formats events, publishes them to in-process subscribers and
// delivers them through the dispatcher. Delivery is best effort: failures
// are logged and counted, never returned to the emitting task.
type Service struct {
	l          *zap.Logger
	dispatcher Dispatcher
	formatter  Formatter
	publisher  publisher
	metrics    *metrics.Metrics
	retrier    *retrier.Retrier
	debug      bool
}

type Option func(*Service)

// WithPublisher fans events out to in-process subscribers.
func WithPublisher(p publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRetrier(r *retrier.Retrier) Option {
	return func(s *Service) { s.retrier = r }
}

// WithDiagnostics enables task failure notifications.
func WithDiagnostics(enabled bool) Option {
	return func(s *Service) { s.debug = enabled }
}

func NewService(l *zap.Logger, dispatcher Dispatcher, formatter Formatter, opts ...Option) *Service {
	s := &Service{
		l:          l.With(zap.String("component", "notify")),
		dispatcher: dispatcher,
		formatter:  formatter,
		retrier: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxInterval(2*time.Second),
			retrier.WithRetryIf(func(err error) bool { return errors.Is(err, domain.ErrUpstream) }),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PositionEvent(ctx context.Context, ev domain.PositionEvent) {
	fields := map[string]string{
		"kind":    string(ev.Kind),
		"price":   ev.Price.String(),
		"delta":   ev.Delta.String(),
		"holding": ev.Position.Holding.String(),
	}
	if ev.Scope != "" {
		fields["scope"] = ev.Scope
	}
	if ev.Trade != nil {
		fields["pnl"] = ev.Trade.PnL.String()
	}

	msg := s.formatter.Position(ev)
	s.deliver(ctx, KindPosition, events.Event{
		Type: KindPosition, Time: ev.At, Symbol: ev.Symbol, Text: msg.Text, Fields: fields,
	}, msg)
}

func (s *Service) MovementEvent(ctx context.Context, ev domain.MovementEvent) {
	msg := s.formatter.Movement(ev)
	s.deliver(ctx, KindMovement, events.Event{
		Type: KindMovement, Time: ev.At, Symbol: ev.Symbol, Text: msg.Text,
		Fields: map[string]string{
			"direction": string(ev.Direction),
			"change":    ev.ChangePercent.String(),
			"price":     ev.Price.String(),
			"baseline":  ev.Baseline.String(),
		},
	}, msg)
}

func (s *Service) AlertFired(ctx context.Context, ev domain.AlertEvent) {
	msg := s.formatter.Alert(ev)
	s.deliver(ctx, KindAlert, events.Event{
		Type: KindAlert, Time: ev.At, Symbol: ev.Alert.InstID, Text: msg.Text,
		Fields: map[string]string{
			"id":        ev.Alert.ID,
			"condition": ev.Alert.Condition.String(),
			"level":     ev.Alert.Price.String(),
			"price":     ev.Price.String(),
		},
	}, msg)
}

func (s *Service) Report(ctx context.Context, r domain.Report) {
	msg := s.formatter.Report(r)
	s.deliver(ctx, KindReport, events.Event{
		Type: KindReport, Time: r.GeneratedAt, Text: msg.Text,
		Fields: map[string]string{
			"report":     string(r.Kind),
			"value":      r.TotalValue.String(),
			"unrealized": r.UnrealizedPnL.String(),
		},
	}, msg)
}

// Diagnostic reports a failed task cycle when diagnostics are enabled.
func (s *Service) Diagnostic(ctx context.Context, task string, err error) {
	if !s.debug || err == nil {
		return
	}
	msg := s.formatter.Diagnostic(task, err)
	s.deliver(ctx, KindDiagnostic, events.Event{
		Type: KindDiagnostic, Time: time.Now(), Text: msg.Text,
		Fields: map[string]string{"task": task},
	}, msg)
}

func (s *Service) deliver(ctx context.Context, kind string, ev events.Event, msg domain.Message) {
	s.metrics.EventEmitted(kind)
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.dispatcher.Send(ctx, msg)
	})
	if err != nil {
		s.metrics.NotificationFailed(kind)
		s.l.Warn("failed to deliver notification",
			zap.String("kind", kind),
			zap.String("symbol", ev.Symbol),
			zap.Error(err))
	}
}
