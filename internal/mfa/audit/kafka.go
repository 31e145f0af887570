package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
)

const DefaultKafkaTopic = "mfa.audit"

var errSinkClosed = errors.New("kafka audit sink closed")

// kafkaEnvelope is the record value published for each event.
type kafkaEnvelope struct {
	Source string            `json:"source"`
	Event  domain.AuditEvent `json:"event"`
}

// KafkaSink publishes audit events through an async producer, keyed by user
// so one user's events stay ordered within a partition. Delivery errors are
// reported asynchronously and only logged.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	source   string
	logger   *slog.Logger

	// mu is held for reading across a send to the producer input and for
	// writing while closed is set, so no send can race the producer's Close.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewKafkaSink dials the brokers and starts the error drain.
func NewKafkaSink(brokers []string, topic, source string, logger *slog.Logger) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka audit sink initialized", "brokers", brokers, "topic", topic)
	return newKafkaSink(producer, topic, source, logger), nil
}

func newKafkaSink(producer sarama.AsyncProducer, topic, source string, logger *slog.Logger) *KafkaSink {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	s := &KafkaSink{
		producer: producer,
		topic:    topic,
		source:   source,
		logger:   logger,
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.handleErrors()
	return s
}

func (s *KafkaSink) Name() string { return "kafka" }

// Emit enqueues the event. It blocks only while the producer input is full
// and gives up when ctx ends.
func (s *KafkaSink) Emit(ctx context.Context, e domain.AuditEvent) error {
	payload, err := json.Marshal(kafkaEnvelope{Source: s.source, Event: e})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(e.UserID),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: e.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(e.Action)},
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}

	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue audit event: %w", ctx.Err())
	case <-s.done:
		return errSinkClosed
	}
}

func (s *KafkaSink) handleErrors() {
	defer s.wg.Done()
	for {
		select {
		case perr, ok := <-s.producer.Errors():
			if !ok {
				return
			}
			if perr != nil {
				s.logger.Error("kafka audit delivery failed", "topic", perr.Msg.Topic, "error", perr.Err)
			}
		case <-s.done:
			return
		}
	}
}

// Close flushes buffered messages and stops the error drain.
func (s *KafkaSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Wakes emitters blocked on a full input so the write lock is reachable.
		close(s.done)

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.wg.Wait()
		if cerr := s.producer.Close(); cerr != nil {
			err = fmt.Errorf("close kafka producer: %w", cerr)
		}
	})
	return err
}
