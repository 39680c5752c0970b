package config

// TopicIngestReport is the NSQ topic run summaries are published to so
// downstream consumers can react to completed ingestion runs.
const TopicIngestReport = "ingest.report"
