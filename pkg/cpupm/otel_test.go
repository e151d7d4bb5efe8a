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

package cpupm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOTelMetrics(t *testing.T) {
	e, _, _ := newTestEngine(t, singleCPUConfig)
	e.IdleIPs().Register("gpu", true)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		require.NoError(t, provider.Shutdown(context.Background()))
	}()

	reg, err := RegisterOTelMetrics(provider.Meter("cpupm-test"), e)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reg.Unregister())
	}()

	e.Enter(0, 1, far, 0)
	e.Exit(0, false, us(250))
	e.Enter(0, 1, far, us(300))
	e.Exit(0, true, us(301))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	metrics := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		metrics[m.Name] = m
	}
	require.Len(t, metrics, 5)

	entries, ok := metrics["cpupm.power_mode.entries"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.True(t, entries.IsMonotonic)
	require.Len(t, entries.DataPoints, 1)
	require.Equal(t, int64(2), entries.DataPoints[0].Value)
	mode, _ := entries.DataPoints[0].Attributes.Value(attribute.Key("mode"))
	require.Equal(t, "CLUSTER0", mode.AsString())

	cancels := metrics["cpupm.power_mode.cancels"].Data.(metricdata.Sum[int64])
	require.Equal(t, int64(1), cancels.DataPoints[0].Value)

	residency := metrics["cpupm.power_mode.residency"].Data.(metricdata.Sum[float64])
	require.InDelta(t, 0.00025, residency.DataPoints[0].Value, 1e-12)
	require.Equal(t, "s", metrics["cpupm.power_mode.residency"].Unit)

	checks := metrics["cpupm.idle_ip.checks"].Data.(metricdata.Sum[int64])
	require.Len(t, checks.DataPoints, 1)
	require.Equal(t, int64(0), checks.DataPoints[0].Value)
}
