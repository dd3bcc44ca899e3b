package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	QueriesTotal     metric.Int64Counter
	QueryDuration    metric.Float64Histogram
	RetrievalResults metric.Int64Counter
	ProviderCalls    metric.Int64Counter
	IndexRebuilds    metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("admissions-chatbot-platform")

	queriesTotal, err := meter.Int64Counter(
		"chatbot.queries.total",
		metric.WithDescription("Total chatbot queries answered"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"chatbot.query.duration",
		metric.WithDescription("End-to-end answer duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalResults, err := meter.Int64Counter(
		"chatbot.retrieval.results",
		metric.WithDescription("Number of chunks retrieved per query"),
	)
	if err != nil {
		return nil, err
	}

	providerCalls, err := meter.Int64Counter(
		"chatbot.provider.calls",
		metric.WithDescription("Generation provider calls"),
	)
	if err != nil {
		return nil, err
	}

	indexRebuilds, err := meter.Int64Counter(
		"chatbot.index.rebuilds",
		metric.WithDescription("Semantic index rebuilds"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		QueriesTotal:     queriesTotal,
		QueryDuration:    queryDuration,
		RetrievalResults: retrievalResults,
		ProviderCalls:    providerCalls,
		IndexRebuilds:    indexRebuilds,
	}, nil
}

// RecordQuery records one answered query with its mode and duration
func (m *Metrics) RecordQuery(mode string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("chatbot.mode", mode),
	}

	m.QueriesTotal.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.QueryDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordRetrieval records how many chunks a query retrieved
func (m *Metrics) RecordRetrieval(count int) {
	m.RetrievalResults.Add(context.Background(), int64(count))
}

// RecordProviderCall records a generation provider call outcome
func (m *Metrics) RecordProviderCall(provider string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.Bool("provider.success", success),
	}

	m.ProviderCalls.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordRebuild records a semantic index rebuild
func (m *Metrics) RecordRebuild(trigger string) {
	attrs := []attribute.KeyValue{
		attribute.String("rebuild.trigger", trigger),
	}

	m.IndexRebuilds.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
