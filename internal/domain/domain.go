package domain

import "github.com/yungbote/askflow-backend/internal/domain/asks"

type NormalizedEvent = asks.NormalizedEvent
type EventChunk = asks.EventChunk
type ExtractedFact = asks.ExtractedFact
type Feature = asks.Feature
type CustomerAsk = asks.CustomerAsk
type MessageCustomerAsk = asks.MessageCustomerAsk
type AggregationRun = asks.AggregationRun
type Theme = asks.Theme

type EventStage = asks.EventStage
type AggregationStatus = asks.AggregationStatus

const (
	StagePending   = asks.StagePending
	StageScored    = asks.StageScored
	StageChunked   = asks.StageChunked
	StageExtracted = asks.StageExtracted
	StageSkipped   = asks.StageSkipped

	AggregationPending    = asks.AggregationPending
	AggregationProcessing = asks.AggregationProcessing
	AggregationAggregated = asks.AggregationAggregated
	AggregationSkipped    = asks.AggregationSkipped
)

// AllModels lists every persisted model in migration order.
func AllModels() []any {
	return []any{
		&asks.Theme{},
		&asks.NormalizedEvent{},
		&asks.EventChunk{},
		&asks.ExtractedFact{},
		&asks.Feature{},
		&asks.MessageCustomerAsk{},
		&asks.AggregationRun{},
	}
}
