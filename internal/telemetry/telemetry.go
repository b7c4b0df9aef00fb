package telemetry

import (
	"log"

	"github.com/honeycombio/honeycomb-opentelemetry-go"
	"github.com/honeycombio/otel-config-go/otelconfig"
)

// Setup configures the global OpenTelemetry SDK from the standard OTEL_*
// environment. The returned func flushes and shuts it down.
func Setup(serviceName string) (func(), error) {
	bsp := honeycomb.NewBaggageSpanProcessor()

	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(serviceName),
		otelconfig.WithSpanProcessor(bsp),
	)
	if err != nil {
		return nil, err
	}
	log.Printf("OpenTelemetry enabled for %s", serviceName)
	return shutdown, nil
}
