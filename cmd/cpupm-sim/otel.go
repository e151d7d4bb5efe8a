/*
Copyright 2025 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// setupOTel installs a global meter provider pushing to the given
// exporter. It returns nil if exporting is disabled. OTLP exporters are
// configured through the standard OTEL_EXPORTER_OTLP_* environment.
func setupOTel(ctx context.Context, exporter string, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)
	switch exporter {
	case "", "none":
		return nil, nil
	case "stdout":
		exp, err = stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	case "otlp-grpc":
		exp, err = otlpmetricgrpc.New(ctx)
	case "otlp-http":
		exp, err = otlpmetrichttp.New(ctx)
	default:
		return nil, fmt.Errorf("unknown OpenTelemetry exporter %q", exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", exporter, err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "cpupm-sim"))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}
