// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig configures the fabric's tracer provider. When Enabled is
// false, InitTracer installs a no-op provider so every span-emitting call
// site stays cheap without needing its own enabled/disabled branch.
type TracerConfig struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64
}

// InitTracer installs and returns a TracerProvider for the process. The
// caller is responsible for shutting down the returned provider if it is
// an *sdktrace.TracerProvider (ShutdownTracerProvider handles both cases).
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "corefabric"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("metrics: failed to build trace resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// ShutdownTracerProvider flushes and stops an *sdktrace.TracerProvider,
// and is a no-op for the noop provider InitTracer returns when disabled.
func ShutdownTracerProvider(ctx context.Context, tp trace.TracerProvider) error {
	if sdktp, ok := tp.(*sdktrace.TracerProvider); ok {
		return sdktp.Shutdown(ctx)
	}
	return nil
}

// Tracer returns a named tracer from the globally installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
