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

// Command fabric wires the execution context, state manager, event bus,
// hook registry/executor, workflow engine, atomic backup, and lifecycle
// state machine into one process and serves the read-only query API
// over HTTP. It takes flags and environment variables only — the fabric
// is one process with one job, not a multi-command CLI, so it carries
// none of the teacher's kong-based command tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/agentfabric/corefabric/backup"
	"github.com/agentfabric/corefabric/events"
	"github.com/agentfabric/corefabric/hooks"
	"github.com/agentfabric/corefabric/httpapi"
	"github.com/agentfabric/corefabric/lifecycle"
	"github.com/agentfabric/corefabric/logging"
	"github.com/agentfabric/corefabric/metrics"
	"github.com/agentfabric/corefabric/state"
	"github.com/agentfabric/corefabric/workflow"
)

const (
	envAddr        = "FABRIC_ADDR"
	envLogLevel    = "FABRIC_LOG_LEVEL"
	envNamespace   = "FABRIC_METRICS_NAMESPACE"
	envHookTimeMs  = "FABRIC_HOOK_TIMEOUT_MS"
	envTraceOn     = "FABRIC_TRACING_ENABLED"
	envTraceSample = "FABRIC_TRACING_SAMPLING_RATE"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnvOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func floatEnvOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func main() {
	addr := flag.String("addr", envOr(envAddr, ":8080"), "address the query API listens on")
	logLevel := flag.String("log-level", envOr(envLogLevel, "info"), "log level: debug, info, warn, error")
	namespace := flag.String("metrics-namespace", envOr(envNamespace, "fabric"), "Prometheus metric namespace prefix")
	hookTimeoutMs := flag.Int64("hook-timeout-ms", 5000, "default per-hook timeout in milliseconds")
	traceEnabled := flag.Bool("trace", boolEnvOr(envTraceOn, false), "enable OpenTelemetry tracing")
	traceSamplingRate := flag.Float64("trace-sampling-rate", floatEnvOr(envTraceSample, 0.1), "fraction of traces to sample when tracing is enabled")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabric: %v\n", err)
		os.Exit(1)
	}
	logging.Init(level, os.Stderr)
	logger := logging.GetLogger()

	tp, err := metrics.InitTracer(context.Background(), metrics.TracerConfig{
		Enabled:      *traceEnabled,
		ServiceName:  *namespace,
		SamplingRate: *traceSamplingRate,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metrics.ShutdownTracerProvider(shutdownCtx, tp); err != nil {
			logger.Warn("error shutting down tracer provider", "error", err)
		}
	}()

	reg := metrics.New(*namespace)

	bus := events.New(
		events.WithPersistence(events.NewMemoryPersistence()),
		events.WithFlowController(events.NewFlowController(1000, time.Second)),
		events.WithMetrics(reg),
	)

	sm := state.NewManager(state.NewMemoryBackend(), reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sm.Open(ctx); err != nil {
		logger.Error("failed to open state backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sm.Close(context.Background()); err != nil {
			logger.Warn("error closing state backend", "error", err)
		}
	}()

	hookRegistry := hooks.NewRegistry()
	hookExecutor := hooks.NewExecutor(hookRegistry, reg, time.Duration(*hookTimeoutMs)*time.Millisecond)

	coordinator := backup.NewCoordinator(sm, backup.WithCompressor(backup.NewCompressor(backup.AlgorithmGzip)), backup.WithMetrics(reg))

	machines := map[string]*lifecycle.Machine{
		"default": lifecycle.NewMachine("default", hookExecutor, reg),
	}
	if err := machines["default"].Initialize(ctx); err != nil {
		logger.Error("failed to initialize default agent", "error", err)
		os.Exit(1)
	}
	if err := machines["default"].Start(ctx); err != nil {
		logger.Error("failed to start default agent", "error", err)
		os.Exit(1)
	}

	runner := workflow.NewStepRunner(hookExecutor, bus, reg, workflow.ResolverFunc(resolveEchoTool), "fabric")
	demoWorkflow := workflow.NewSequential(runner, []workflow.WorkflowStep{
		{ID: "step-1", Name: "echo", Type: workflow.StepTool, Params: map[string]any{"message": "fabric online"}},
	}, workflow.ErrorStrategy{Kind: workflow.FailFast}, 10*time.Second)
	result := demoWorkflow.Run(ctx, nil, "startup")
	logger.Info("startup workflow completed", "success", result.Success, "steps_completed", result.StepsCompleted)

	router := &httpapi.Router{
		Bus:         bus,
		Coordinator: coordinator,
		Executor:    hookExecutor,
		Machines: func(agentID string) (*lifecycle.Machine, bool) {
			m, ok := machines[agentID]
			return m, ok
		},
		Metrics: reg,
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           router.NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("fabric query API listening", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("query API server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := machines["default"].Stop(ctx); err != nil {
		logger.Warn("default agent failed to stop cleanly", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("query API shutdown error", "error", err)
	}
	bus.Shutdown()
}

// echoTool is the only built-in ToolOrAgent this binary ships: it
// returns its params verbatim, useful for exercising the workflow
// engine without a real tool/agent integration wired in.
type echoTool struct{}

func (echoTool) Invoke(_ context.Context, step workflow.WorkflowStep, params map[string]any) (any, error) {
	slog.Debug("echo tool invoked", "step", step.Name, "params", params)
	return params, nil
}

func resolveEchoTool(step workflow.WorkflowStep) (workflow.ToolOrAgent, error) {
	if step.Name != "echo" {
		return nil, fmt.Errorf("fabric: no tool/agent registered for step %q", step.Name)
	}
	return echoTool{}, nil
}
