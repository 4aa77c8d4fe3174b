package capture

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/dpi-sniffer/internal/resilience"
)

var propagator = propagation.TraceContext{}

type alertRecord struct {
	RID              uint32    `json:"rid"`
	Offset           int32     `json:"offset"`
	AutomatonVersion string    `json:"automaton_version"`
	Severity         string    `json:"severity,omitempty"`
	ObservedAt       time.Time `json:"observed_at"`
}

// AlertPublisher is a best-effort, rate-limited publisher of resolved match
// batches to a NATS subject, for downstream SOC/alerting consumption. A nil
// *AlertPublisher is valid and simply drops every Publish call, so the
// capture pipeline never needs a nil check of its own before calling it.
type AlertPublisher struct {
	nc      *nats.Conn
	subject string
	limiter *resilience.RateLimiter

	lastVersion string
}

// NewAlertPublisher connects to url and returns a publisher for subject. An
// empty url disables alerting entirely: (nil, nil) is returned so the
// pipeline can treat the feature as off without special-casing it.
func NewAlertPublisher(url, subject string) (*AlertPublisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url, nats.Name("dpi-sniffer"))
	if err != nil {
		return nil, err
	}
	return &AlertPublisher{
		nc:      nc,
		subject: subject,
		limiter: resilience.NewRateLimiter(50, 10, time.Second, 100),
	}, nil
}

// Publish sends one alert record per resolved match, trace-context
// propagated into NATS message headers exactly as the ambient publish
// helper does for request/response traffic. Records refused by the rate
// limiter are dropped without logging; marshal and publish errors are
// logged. None of these is fatal to the capture loop.
func (p *AlertPublisher) Publish(ctx context.Context, automatonVersion string, records []ReportRecord) {
	if p == nil || len(records) == 0 {
		return
	}

	tr := otel.Tracer("dpi-sniffer")
	ctx, span := tr.Start(ctx, "alerts.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	if p.lastVersion != "" && p.lastVersion != automatonVersion {
		// A hot-reloaded ruleset means the budget consumed so far belongs to
		// rules that no longer match; don't let it suppress fresh alerts.
		p.limiter.Reset()
	}
	p.lastVersion = automatonVersion

	for _, rec := range records {
		if !p.limiter.Allow() {
			continue
		}
		payload, err := json.Marshal(alertRecord{
			RID:              rec.RID,
			Offset:           rec.Offset,
			AutomatonVersion: automatonVersion,
			ObservedAt:       time.Now(),
		})
		if err != nil {
			slog.Warn("alert marshal failed", "error", err)
			continue
		}
		if err := p.publish(ctx, payload); err != nil {
			slog.Warn("alert publish failed", "error", err, "subject", p.subject)
		}
	}
}

func (p *AlertPublisher) publish(ctx context.Context, data []byte) error {
	hdr := nats.Header{}
	carrier := propagation.HeaderCarrier(hdr)
	propagator.Inject(ctx, carrier)
	msg := &nats.Msg{Subject: p.subject, Data: data, Header: hdr}
	return p.nc.PublishMsg(msg)
}

// Close drains and closes the underlying NATS connection.
func (p *AlertPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}
