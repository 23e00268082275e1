package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContextFallback(t *testing.T) {
	var buf bytes.Buffer
	fallback := zerolog.New(&buf)

	logger := FromContext(context.Background(), fallback)
	logger.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Fatalf("expected fallback logger to be used, got %q", buf.String())
	}

	buf.Reset()
	var scoped bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&scoped).With().Uint64(string(CycleIDKey), 7).Logger())
	logger = FromContext(ctx, fallback)
	logger.Info().Msg("scoped")
	if buf.Len() != 0 {
		t.Errorf("fallback must not be used when the context carries a logger")
	}
	if !strings.Contains(scoped.String(), `"cycle_id":7`) {
		t.Errorf("expected cycle id in scoped output, got %q", scoped.String())
	}
}

func TestLogAlertFields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(zerolog.New(&buf), "evaluator")
	LogAlert(logger, "a1", "Bitcoin", "above", 60500, 60500.5)

	out := buf.String()
	for _, want := range []string{`"component":"evaluator"`, `"alert_id":"a1"`, `"name":"Bitcoin"`, `"threshold":60500`, `"price":60500.5`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %q", want, out)
		}
	}
}
