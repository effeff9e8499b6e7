package stats

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelStore publica as decisões como um contador OpenTelemetry.
// A chave do cliente nunca vira atributo (cardinalidade).
type OTelStore struct {
	decisions metric.Int64Counter
}

func NewOTelStore(meter metric.Meter) (*OTelStore, error) {
	c, err := meter.Int64Counter(
		"gateway.decisions.total",
		metric.WithDescription("Decisions taken by the gateway middleware layers"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create decisions counter: %w", err)
	}
	return &OTelStore{decisions: c}, nil
}

func (s *OTelStore) Record(ctx context.Context, ev Event) error {
	s.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("layer", ev.Layer),
		attribute.String("outcome", string(ev.Outcome)),
		attribute.String("http.method", ev.Method),
		attribute.String("http.route", ev.Path),
	))
	return nil
}
