package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes fiscal-engine instruments.
type Metrics struct {
	submissions       metric.Int64Counter
	approvals         metric.Int64Counter
	rejections        metric.Int64Counter
	transportFailures metric.Int64Counter
	batchPolls        metric.Int64Counter
	creditNotes       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "kuatia"
	}
	meter := provider.Meter(name)

	submissions, err := meter.Int64Counter("kuatia_fiscal_submissions_total")
	if err != nil {
		return nil, err
	}
	approvals, err := meter.Int64Counter("kuatia_fiscal_approvals_total")
	if err != nil {
		return nil, err
	}
	rejections, err := meter.Int64Counter("kuatia_fiscal_rejections_total")
	if err != nil {
		return nil, err
	}
	transportFailures, err := meter.Int64Counter("kuatia_fiscal_transport_failures_total")
	if err != nil {
		return nil, err
	}
	batchPolls, err := meter.Int64Counter("kuatia_fiscal_batch_polls_total")
	if err != nil {
		return nil, err
	}
	creditNotes, err := meter.Int64Counter("kuatia_credit_notes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		submissions:       submissions,
		approvals:         approvals,
		rejections:        rejections,
		transportFailures: transportFailures,
		batchPolls:        batchPolls,
		creditNotes:       creditNotes,
	}, nil
}

func (m *Metrics) RecordSubmission(ctx context.Context, docType string) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("doc_type", docType)))
}

func (m *Metrics) RecordApproval(ctx context.Context, docType string) {
	if m == nil {
		return
	}
	m.approvals.Add(ctx, 1, metric.WithAttributes(attribute.String("doc_type", docType)))
}

func (m *Metrics) RecordRejection(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("authority_code", code)))
}

func (m *Metrics) RecordTransportFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.transportFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordBatchPoll(ctx context.Context) {
	if m == nil {
		return
	}
	m.batchPolls.Add(ctx, 1)
}

func (m *Metrics) RecordCreditNote(ctx context.Context) {
	if m == nil {
		return
	}
	m.creditNotes.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
