package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaConfig holds configuration for the Kafka producer.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string

	SASLMechanism string
	SASLUser      string
	SASLPassword  string
}

// KafkaSink produces decisions to Kafka, keyed by verification ID so
// downstream consumers can deduplicate on redelivery.
type KafkaSink struct {
	config   KafkaConfig
	producer *kafka.Producer
}

// NewKafkaSinkFromEnv creates a KafkaSink from environment variables.
func NewKafkaSinkFromEnv() *KafkaSink {
	brokersStr := os.Getenv("KAFKA_BROKERS")
	if brokersStr == "" {
		brokersStr = "localhost:9092"
	}
	brokers := strings.Split(brokersStr, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return &KafkaSink{config: KafkaConfig{
		Brokers:       brokers,
		Topic:         getEnvOr("KAFKA_TOPIC", "passivecaptcha.decisions"),
		Acks:          getEnvOr("KAFKA_ACKS", "all"),
		Compression:   os.Getenv("KAFKA_COMPRESSION"),
		SASLMechanism: os.Getenv("KAFKA_SASL_MECHANISM"),
		SASLUser:      os.Getenv("KAFKA_SASL_USER"),
		SASLPassword:  os.Getenv("KAFKA_SASL_PASSWORD"),
	}}
}

// NewKafkaSink creates a KafkaSink with explicit configuration.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{config: KafkaConfig{Brokers: brokers, Topic: topic, Acks: "all"}}
}

func (s *KafkaSink) Start(ctx context.Context) error {
	configMap := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"linger.ms":         10,
	}
	if s.config.Compression != "" {
		configMap["compression.type"] = s.config.Compression
	}
	if s.config.SASLMechanism != "" {
		configMap["security.protocol"] = "SASL_SSL"
		configMap["sasl.mechanism"] = s.config.SASLMechanism
		configMap["sasl.username"] = s.config.SASLUser
		configMap["sasl.password"] = s.config.SASLPassword
	}

	producer, err := kafka.NewProducer(&configMap)
	if err != nil {
		return fmt.Errorf("kafkasink: create producer: %w", err)
	}
	s.producer = producer

	// Drain delivery reports so the internal queue never backs up.
	go func() {
		for e := range producer.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				log.Printf("kafkasink: delivery failed: %v", m.TopicPartition.Error)
			}
		}
	}()
	return nil
}

func (s *KafkaSink) Enqueue(r Record) error {
	if s.producer == nil {
		return errors.New("kafkasink: not started")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("kafkasink: marshal: %w", err)
	}
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.config.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(r.VerificationID),
		Value:          payload,
	}, nil)
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}
	s.producer.Flush(5000)
	s.producer.Close()
	return nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func getEnvOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
