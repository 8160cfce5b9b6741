// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "stdout")

	cfg := DefaultConfig()
	if cfg.ServiceName != "wayfarer" {
		t.Errorf("ServiceName = %q, want wayfarer", cfg.ServiceName)
	}
	if cfg.TraceExporter != ExporterNone {
		t.Errorf("TraceExporter = %q, want none", cfg.TraceExporter)
	}
	if cfg.MetricExporter != ExporterStdout {
		t.Errorf("MetricExporter = %q, want stdout from env", cfg.MetricExporter)
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	if !errors.Is(err, ErrNilContext) {
		t.Fatalf("expected ErrNilContext, got %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	cases := []Config{
		{TraceExporter: "zipkin", MetricExporter: ExporterNone},
		{TraceExporter: ExporterNone, MetricExporter: "statsd"},
	}
	for _, cfg := range cases {
		_, err := Init(context.Background(), cfg)
		if !errors.Is(err, ErrUnknownExporter) {
			t.Errorf("Init(%+v) error = %v, want ErrUnknownExporter", cfg, err)
		}
		if err != nil && !strings.Contains(err.Error(), "unknown exporter type") {
			t.Errorf("error %q does not name the problem", err)
		}
	}
}

func TestInit_StdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		ServiceName:    "wayfarer-test",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterNone,
		Writer:         &buf,
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := otel.Tracer("wayfarer.test").Start(context.Background(), "plan.node")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "plan.node") {
		t.Errorf("stdout exporter output missing span name: %s", buf.String())
	}
}

func TestInit_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{
		ServiceName:    "wayfarer-test",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterPrometheus,
		Registerer:     reg,
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	counter, err := otel.Meter("wayfarer.test").Int64Counter("wayfarer_test_steps")
	if err != nil {
		t.Fatalf("Int64Counter: %v", err)
	}
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "wayfarer_test_steps") {
			found = true
		}
	}
	if !found {
		t.Error("counter was not exported to the prometheus registry")
	}
}
