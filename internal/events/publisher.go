// Package events publishes pipeline transitions and results to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/metrics"
)

// Publisher publishes transition and result events to separate Kafka topics.
// It is both a transition sink and a result sink of the pipeline.
type Publisher struct {
	writerTransitions *kafka.Writer
	writerResults     *kafka.Writer
	principal         string
	topicTransitions  string
	topicResults      string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTransitions string
	TopicResults     string
	Principal        string
	Enabled          bool
}

// New creates a Kafka event publisher. With a nil or disabled config, or no
// brokers, events are only logged.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicTransitions: cfg.TopicTransitions,
			topicResults:     cfg.TopicResults,
			enabled:          false,
			metrics:          m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTransitions", cfg.TopicTransitions).
		Str("topicResults", cfg.TopicResults).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTransitions: newWriter(cfg.TopicTransitions),
		writerResults:     newWriter(cfg.TopicResults),
		principal:         cfg.Principal,
		topicTransitions:  cfg.TopicTransitions,
		topicResults:      cfg.TopicResults,
		enabled:           true,
		metrics:           m,
	}
}

// Name identifies the publisher as a sink.
func (p *Publisher) Name() string {
	return "kafka"
}

// RecordTransition publishes ev keyed by run ID, so a run's events stay in
// one partition and in order.
func (p *Publisher) RecordTransition(ctx context.Context, runID string, ev models.TransitionEvent) error {
	return p.PublishTransition(ctx, runID, ev)
}

// RecordResult publishes a summary of result.
func (p *Publisher) RecordResult(ctx context.Context, result *models.PipelineResult) error {
	return p.PublishResult(ctx, result)
}

// PublishTransition publishes one transition to the transitions topic.
func (p *Publisher) PublishTransition(ctx context.Context, runID string, ev models.TransitionEvent) error {
	msg := TransitionMessage{EventType: EventTypeTransition, RunID: runID, Event: ev}
	return p.publish(ctx, p.writerTransitions, p.topicTransitions, EventTypeTransition, runID, msg)
}

// PublishResult publishes a run summary to the results topic.
func (p *Publisher) PublishResult(ctx context.Context, result *models.PipelineResult) error {
	msg := NewResultMessage(result, time.Now().UTC())
	return p.publish(ctx, p.writerResults, p.topicResults, EventTypeResult, result.RunID, msg)
}

// publish writes one message to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTransitions != nil {
		if e := p.writerTransitions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transitions writer")
			err = e
		}
	}
	if p.writerResults != nil {
		if e := p.writerResults.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing results writer")
			err = e
		}
	}
	return err
}
