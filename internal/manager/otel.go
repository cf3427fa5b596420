package manager

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/subgrids/extension/internal/manager"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	frames     metric.Int64ObservableGauge
	pulls      metric.Int64Counter
	pullErrors metric.Int64Counter
	attached   metric.Int64Counter
}

func newMetrics(m *Manager) (*metrics, error) {
	mt := meter()
	out := &metrics{}

	var err error
	out.frames, err = mt.Int64ObservableGauge(
		"subgrids.frames",
		metric.WithDescription("Current number of live subgrids"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames gauge: %w", err)
	}

	_, err = mt.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.frames, int64(m.Len()))
			return nil
		},
		out.frames,
	)
	if err != nil {
		return nil, fmt.Errorf("registering frames callback: %w", err)
	}

	out.pulls, err = mt.Int64Counter(
		"subgrids.pulls",
		metric.WithDescription("Total master updates propagated to passengers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pulls counter: %w", err)
	}

	out.pullErrors, err = mt.Int64Counter(
		"subgrids.pulls.failed",
		metric.WithDescription("Total master updates aborted by a failed write-back"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed pulls counter: %w", err)
	}

	out.attached, err = mt.Int64Counter(
		"subgrids.objects.attached",
		metric.WithDescription("Total objects attached to subgrids"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attached counter: %w", err)
	}

	return out, nil
}

func gridAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("grid", name))
}
