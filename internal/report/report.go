package report

import (
	"context"
	"encoding/json"
	"log/slog"

	"quarry/ingest/internal/config"
	"quarry/ingest/internal/pipeline"
)

// Publisher matches *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Reporter publishes run summaries to NSQ for downstream consumers. A nil
// publisher disables reporting; the run itself never depends on it.
type Reporter struct {
	pub    Publisher
	logger *slog.Logger
}

func New(pub Publisher, logger *slog.Logger) *Reporter {
	return &Reporter{pub: pub, logger: logger}
}

// Publish sends the summary to the report topic. Failures are logged and
// swallowed; a completed ingestion run is not undone by a reporting outage.
func (r *Reporter) Publish(ctx context.Context, summary *pipeline.Summary) {
	if r.pub == nil {
		return
	}

	body, err := json.Marshal(summary)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to marshal run summary", "error", err)
		return
	}

	if err := r.pub.Publish(config.TopicIngestReport, body); err != nil {
		r.logger.WarnContext(ctx, "failed to publish run summary", "topic", config.TopicIngestReport, "error", err)
		return
	}

	r.logger.InfoContext(ctx, "run summary published", "topic", config.TopicIngestReport)
}
