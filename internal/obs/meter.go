package obs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a global OpenTelemetry meter provider whose
// instruments are collected through reg. Library instruments such as the
// redis pool stats and otelhttp request durations then show up on /metrics
// next to the native Prometheus collectors.
func InitMeterProvider(namespace string, reg prometheus.Registerer) (metric.MeterProvider, func(context.Context) error, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg), otelprom.WithNamespace(namespace))
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}
