package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avellaneda/modstack/internal/domain"
)

const tracerName = "github.com/avellaneda/modstack/internal/adapter/otel"

// TracingProvisioner wraps a domain.Provisioner with OpenTelemetry tracing.
// Each step creates a span with tenant/module/step attributes and records
// errors, so a failed installation shows which step broke and how long each
// one took.
type TracingProvisioner struct {
	next   domain.Provisioner
	tracer trace.Tracer
}

// Compile-time check: TracingProvisioner implements domain.Provisioner.
var _ domain.Provisioner = (*TracingProvisioner)(nil)

// NewTracingProvisioner creates a tracing decorator around the given provisioner.
func NewTracingProvisioner(next domain.Provisioner) *TracingProvisioner {
	return &TracingProvisioner{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingProvisioner) ExecuteStep(ctx context.Context, tenantID, moduleSlug, stepName string) error {
	ctx, span := p.tracer.Start(ctx, "Provisioner.ExecuteStep",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("module.slug", moduleSlug),
			attribute.String("module.step", stepName),
		),
	)
	defer span.End()

	err := p.next.ExecuteStep(ctx, tenantID, moduleSlug, stepName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *TracingProvisioner) CompensateStep(ctx context.Context, tenantID, moduleSlug, stepName string) error {
	ctx, span := p.tracer.Start(ctx, "Provisioner.CompensateStep",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("module.slug", moduleSlug),
			attribute.String("module.step", stepName),
		),
	)
	defer span.End()

	err := p.next.CompensateStep(ctx, tenantID, moduleSlug, stepName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
