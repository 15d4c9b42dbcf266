package sink

import (
	"testing"
)

func TestNewKafkaSinkFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := NewKafkaSinkFromEnv()
		if len(s.config.Brokers) != 1 || s.config.Brokers[0] != "localhost:9092" {
			t.Errorf("brokers = %v, want [localhost:9092]", s.config.Brokers)
		}
		if s.config.Topic != "passivecaptcha.decisions" {
			t.Errorf("topic = %q", s.config.Topic)
		}
		if s.config.Acks != "all" {
			t.Errorf("acks = %q, want all", s.config.Acks)
		}
	})

	t.Run("parses broker list with whitespace", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,b3:9092")
		t.Setenv("KAFKA_TOPIC", "decisions.test")

		s := NewKafkaSinkFromEnv()
		want := []string{"b1:9092", "b2:9092", "b3:9092"}
		if len(s.config.Brokers) != len(want) {
			t.Fatalf("brokers = %v, want %v", s.config.Brokers, want)
		}
		for i := range want {
			if s.config.Brokers[i] != want[i] {
				t.Errorf("broker[%d] = %q, want %q", i, s.config.Brokers[i], want[i])
			}
		}
		if s.config.Topic != "decisions.test" {
			t.Errorf("topic = %q", s.config.Topic)
		}
	})
}

func TestKafkaSinkLifecycle(t *testing.T) {
	t.Run("enqueue before start fails", func(t *testing.T) {
		s := NewKafkaSink([]string{"localhost:9092"}, "decisions")
		if err := s.Enqueue(sampleRecord()); err == nil {
			t.Error("expected error before Start")
		}
	})

	t.Run("close before start is a no-op", func(t *testing.T) {
		s := NewKafkaSink([]string{"localhost:9092"}, "decisions")
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	t.Run("name", func(t *testing.T) {
		if got := NewKafkaSink(nil, "").Name(); got != "kafka" {
			t.Errorf("name = %q, want kafka", got)
		}
	})
}
