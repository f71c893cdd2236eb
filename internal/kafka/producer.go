package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mppsolar2mqtt/internal/config"
	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	HEADER_MESSAGE_ID   = "message-id"
	HEADER_MESSAGE_TYPE = "message-type"

	MESSAGE_TYPE_REGISTER = "register"
	MESSAGE_TYPE_VALUE    = "value"

	WRITE_TIMEOUT = 2 * time.Second
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaWriteCloser interface {
	Close() error
}

// Producer streams path updates to a Kafka topic, keyed by device.
type Producer struct {
	topic  string
	writer kafkaMessageWriter
	closer kafkaWriteCloser
	logger *zap.Logger
	now    func() time.Time
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	logger = logger.With(zap.String("component", "kafka"))
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		// writes never block the poll cycle
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka@write failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return newProducerWithWriter(cfg.Topic, writer, writer, logger), nil
}

func newProducerWithWriter(topic string, writer kafkaMessageWriter, closer kafkaWriteCloser, logger *zap.Logger) *Producer {
	return &Producer{
		topic:  topic,
		writer: writer,
		closer: closer,
		logger: logger,
		now:    time.Now,
	}
}

func (p *Producer) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// PathMessage is the JSON value of every produced message.
type PathMessage struct {
	Device    string    `json:"device"`
	Service   string    `json:"service"`
	Path      string    `json:"path,omitempty"`
	Value     any       `json:"value,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
	Identity  any       `json:"identity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Producer) write(messageType string, key string, msg PathMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), WRITE_TIMEOUT)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HEADER_MESSAGE_ID, Value: []byte(uuid.New().String())},
			{Key: HEADER_MESSAGE_TYPE, Value: []byte(messageType)},
		},
	})
}

func (p *Producer) Sink(kind domain.ServiceKind, identity domain.ServiceIdentity, uniqueId string) *Sink {
	return &Sink{
		producer: p,
		service:  kind.String(),
		identity: identity,
		uniqueId: uniqueId,
		values:   map[string]any{},
	}
}

type Sink struct {
	producer *Producer
	service  string
	identity domain.ServiceIdentity
	uniqueId string
	paths    []string
	values   map[string]any
}

func (s *Sink) AddPath(path string, value any, required bool, description string) error {
	if _, ok := s.values[path]; !ok {
		s.paths = append(s.paths, path)
	}
	s.values[path] = value
	return nil
}

// Register produces one message listing the service paths and its identity.
func (s *Sink) Register() error {
	return s.producer.write(MESSAGE_TYPE_REGISTER, s.uniqueId, PathMessage{
		Device:    s.uniqueId,
		Service:   s.service,
		Paths:     s.paths,
		Identity:  s.identity,
		Timestamp: s.producer.now(),
	})
}

func (s *Sink) Set(path string, value any) error {
	if _, ok := s.values[path]; !ok {
		return fmt.Errorf("set %s: unknown path of service %s", path, s.service)
	}
	return s.producer.write(MESSAGE_TYPE_VALUE, s.uniqueId, PathMessage{
		Device:    s.uniqueId,
		Service:   s.service,
		Path:      path,
		Value:     value,
		Timestamp: s.producer.now(),
	})
}

// ensure interface compliance
var _ port.PublishSink = (*Sink)(nil)
