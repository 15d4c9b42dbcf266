package sink

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"
)

func sampleRecord() Record {
	return Record{
		VerificationID:  "4f5e6d7c-0000-0000-0000-000000000001",
		SessionID:       "sess-1",
		Origin:          "https://example.com",
		IsHuman:         true,
		Confidence:      0.91,
		InferenceTimeMs: 0.42,
		Features:        []float64{150, 0.8, 0.09, 40, 180, 0.15, 0.5, 0.9, 0.8, 1.0, 0.8},
		TS:              time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLogSink(t *testing.T) {
	t.Run("writes decision json to the log", func(t *testing.T) {
		var buf bytes.Buffer
		log.SetOutput(&buf)
		defer log.SetOutput(log.Writer())

		s := NewLogSink()
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := s.Enqueue(sampleRecord()); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, `"verification_id"`) {
			t.Errorf("log output missing verification_id: %q", out)
		}
		if !strings.Contains(out, `"is_human":true`) {
			t.Errorf("log output missing decision: %q", out)
		}
	})

	t.Run("name", func(t *testing.T) {
		if got := NewLogSink().Name(); got != "log" {
			t.Errorf("name = %q, want log", got)
		}
	})
}
