package main

import (
	"log/slog"

	"afenda/internal/platform/config"
	"afenda/internal/platform/health"
	"afenda/internal/platform/kafka"
	"afenda/internal/platform/kafka/producer"
	"afenda/pkg/platform/audit"
	auditmetrics "afenda/pkg/platform/audit/metrics"
	"afenda/pkg/platform/audit/publisher"
	"afenda/pkg/platform/audit/sink"
)

const auditBufferSize = 1024

type auditPipeline struct {
	Logger *audit.Logger
	Check  health.CheckFunc
}

// newAuditPipeline publishes audit events to Kafka when brokers are
// configured and to the log otherwise. Publishing is asynchronous so a slow
// broker never delays a sign-in.
func newAuditPipeline(cfg config.Server, log *slog.Logger) (*auditPipeline, func(), error) {
	var (
		store audit.Store
		check health.CheckFunc
		prod  *producer.Producer
	)
	if cfg.KafkaBrokers != "" {
		p, err := producer.New(producer.DefaultConfig(cfg.KafkaBrokers), log)
		if err != nil {
			return nil, nil, err
		}
		prod = p
		store = sink.NewKafka(p, cfg.AuditTopic)
		check = kafka.NewHealthChecker(p.Client()).Check
		log.Info("audit events published to kafka", "topic", cfg.AuditTopic)
	} else {
		store = sink.NewLog(log)
	}

	pub := publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithPublisherLogger(log),
		publisher.WithMetrics(auditmetrics.New()),
	)
	closeFn := func() {
		pub.Close()
		if prod != nil {
			_ = prod.Close()
		}
	}
	return &auditPipeline{Logger: audit.NewLogger(log, pub), Check: check}, closeFn, nil
}
