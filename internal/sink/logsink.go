package sink

import (
	"context"
	"encoding/json"
	"log"
)

// LogSink writes decisions to the process log. Default sink for development.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Enqueue(r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	log.Printf("decision %s", string(b))
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
