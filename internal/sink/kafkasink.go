package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/event"
)

// KafkaConfig holds configuration for Kafka producer
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string

	// SASL config
	SASLMechanism string
	SASLUser      string
	SASLPassword  string

	// TLS config
	TLSCAPath     string
	TLSSkipVerify bool
}

// KafkaSink produces verdict events keyed by event_id.
type KafkaSink struct {
	config   KafkaConfig
	producer *kafka.Producer
	log      *zap.SugaredLogger

	// stopReports ends the delivery report loop; reportsDone closes when it has.
	stopReports context.CancelFunc
	reportsDone chan struct{}
}

// NewKafkaSinkFromEnv creates a KafkaSink from environment variables
func NewKafkaSinkFromEnv() *KafkaSink {
	var brokers []string
	for _, b := range strings.Split(getEnvOr("KAFKA_BROKERS", "localhost:9092"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &KafkaSink{
		config: KafkaConfig{
			Brokers:       brokers,
			Topic:         getEnvOr("KAFKA_TOPIC", "botgate.verdicts"),
			Acks:          getEnvOr("KAFKA_ACKS", "all"),
			Compression:   os.Getenv("KAFKA_COMPRESSION"),
			SASLMechanism: os.Getenv("KAFKA_SASL_MECHANISM"),
			SASLUser:      os.Getenv("KAFKA_SASL_USER"),
			SASLPassword:  os.Getenv("KAFKA_SASL_PASSWORD"),
			TLSCAPath:     os.Getenv("KAFKA_TLS_CA"),
			TLSSkipVerify: getBoolEnv("KAFKA_TLS_SKIP_VERIFY", false),
		},
		log: zap.NewNop().Sugar(),
	}
}

// NewKafkaSink creates a KafkaSink with explicit configuration
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		config: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
			Acks:    "all",
		},
		log: zap.NewNop().Sugar(),
	}
}

// WithLogger sets the logger used for delivery reports.
func (s *KafkaSink) WithLogger(log *zap.SugaredLogger) *KafkaSink {
	if log != nil {
		s.log = log
	}
	return s
}

func (s *KafkaSink) Name() string { return "kafka" }

// configMap translates KafkaConfig into librdkafka properties.
func (s *KafkaSink) configMap() kafka.ConfigMap {
	cm := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"batch.size":        16384,
		"linger.ms":         10,
	}

	if s.config.Compression != "" {
		cm["compression.type"] = s.config.Compression
	}

	if s.config.SASLMechanism != "" {
		cm["security.protocol"] = "SASL_SSL"
		cm["sasl.mechanism"] = s.config.SASLMechanism
		if s.config.SASLUser != "" {
			cm["sasl.username"] = s.config.SASLUser
		}
		if s.config.SASLPassword != "" {
			cm["sasl.password"] = s.config.SASLPassword
		}
	}

	if s.config.TLSCAPath != "" {
		if s.config.SASLMechanism == "" {
			cm["security.protocol"] = "SSL"
		}
		cm["ssl.ca.location"] = s.config.TLSCAPath
	}

	if s.config.TLSSkipVerify {
		cm["ssl.endpoint.identification.algorithm"] = "none"
	}
	return cm
}

func (s *KafkaSink) Start(ctx context.Context) error {
	cm := s.configMap()
	producer, err := kafka.NewProducer(&cm)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	s.producer = producer

	// Reports outlive ctx so failures during the final Flush are still logged.
	reportCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopReports = cancel
	s.reportsDone = make(chan struct{})
	go func() {
		defer close(s.reportsDone)
		s.handleDeliveryReports(reportCtx)
	}()
	return nil
}

// message builds the record for e. The key is the event id so replays
// land on the same partition.
func (s *KafkaSink) message(e event.Event) (*kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	verdict := "human"
	if e.Verdict.Bot {
		verdict = "bot"
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(e.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "verdict", Value: []byte(verdict)},
			{Key: "schema", Value: []byte("v1")},
		},
	}, nil
}

func (s *KafkaSink) Enqueue(e event.Event) error {
	if s.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	msg, err := s.message(e)
	if err != nil {
		return err
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}

	// Wait up to 10 seconds for in-flight messages.
	remaining := s.producer.Flush(10 * 1000)
	s.stopReports()
	<-s.reportsDone
	s.producer.Close()
	if remaining > 0 {
		return fmt.Errorf("failed to flush %d remaining messages", remaining)
	}
	return nil
}

func (s *KafkaSink) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					s.log.Warnw("kafka delivery failed", "topic", s.config.Topic, "error", e.TopicPartition.Error)
				}
			case kafka.Error:
				s.log.Errorw("kafka client error", "code", e.Code().String(), "error", e)
			}
		}
	}
}

func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return defaultValue
}
