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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegisterOTelMetrics registers asynchronous OpenTelemetry instruments
// that report the engine statistics on every collection of meter.
func RegisterOTelMetrics(meter metric.Meter, e *Engine) (metric.Registration, error) {
	entries, err := meter.Int64ObservableCounter("cpupm.power_mode.entries",
		metric.WithDescription("Number of times the power mode was entered."))
	if err != nil {
		return nil, fmt.Errorf("failed to create entries counter: %w", err)
	}
	cancels, err := meter.Int64ObservableCounter("cpupm.power_mode.cancels",
		metric.WithDescription("Number of cancelled or vetoed power mode entries."))
	if err != nil {
		return nil, fmt.Errorf("failed to create cancels counter: %w", err)
	}
	residency, err := meter.Float64ObservableCounter("cpupm.power_mode.residency",
		metric.WithDescription("Time spent in the power mode."), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create residency counter: %w", err)
	}
	ipChecks, err := meter.Int64ObservableCounter("cpupm.idle_ip.checks",
		metric.WithDescription("Number of times the Idle-IP was checked."))
	if err != nil {
		return nil, fmt.Errorf("failed to create idle-ip checks counter: %w", err)
	}
	ipBusy, err := meter.Int64ObservableCounter("cpupm.idle_ip.busy",
		metric.WithDescription("Number of checks that found the Idle-IP busy."))
	if err != nil {
		return nil, fmt.Errorf("failed to create idle-ip busy counter: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := e.Statistics()
		for _, m := range st.Modes {
			attrs := metric.WithAttributes(
				attribute.String("mode", m.Name),
				attribute.String("kind", m.Kind.String()),
			)
			o.ObserveInt64(entries, int64(m.EntryCount), attrs)
			o.ObserveInt64(cancels, int64(m.CancelCount), attrs)
			o.ObserveFloat64(residency, m.Residency.Seconds(), attrs)
		}
		for _, ip := range st.IdleIPs {
			attrs := metric.WithAttributes(attribute.String("idle_ip", ip.Name))
			o.ObserveInt64(ipChecks, int64(ip.Checks), attrs)
			o.ObserveInt64(ipBusy, int64(ip.BusyCount), attrs)
		}
		return nil
	}, entries, cancels, residency, ipChecks, ipBusy)
}
