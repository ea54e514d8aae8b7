package asks

// EventStage is the processing_stage of a NormalizedEvent. It only moves forward.
type EventStage string

const (
	StagePending   EventStage = "pending"
	StageScored    EventStage = "scored"
	StageChunked   EventStage = "chunked"
	StageExtracted EventStage = "extracted"
	StageSkipped   EventStage = "skipped"
)

var stageRank = map[EventStage]int{
	StagePending:   0,
	StageScored:    1,
	StageChunked:   2,
	StageExtracted: 3,
	StageSkipped:   3,
}

// CanAdvance reports whether from -> to is a forward transition.
func (from EventStage) CanAdvance(to EventStage) bool {
	fr, ok := stageRank[from]
	if !ok {
		return false
	}
	tr, ok := stageRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// AggregationStatus is the aggregation_status of an ExtractedFact.
type AggregationStatus string

const (
	AggregationPending    AggregationStatus = "pending"
	AggregationProcessing AggregationStatus = "processing"
	AggregationAggregated AggregationStatus = "aggregated"
	AggregationSkipped    AggregationStatus = "skipped"
)

type SourceType string

const (
	SourceSlack          SourceType = "slack"
	SourceEmail          SourceType = "email"
	SourceCallTranscript SourceType = "call_transcript"
	SourceOther          SourceType = "other"
)

type ActorRole string

const (
	ActorCustomer ActorRole = "customer"
	ActorProspect ActorRole = "prospect"
	ActorInternal ActorRole = "internal"
	ActorUnknown  ActorRole = "unknown"
)

type MatchReason string

const (
	MatchReasonMatchedExisting MatchReason = "matched_existing"
	MatchReasonCreatedNew      MatchReason = "created_new"
)

type FeatureStatus string

const (
	FeatureOpen    FeatureStatus = "open"
	FeaturePlanned FeatureStatus = "planned"
	FeatureShipped FeatureStatus = "shipped"
	FeatureMerged  FeatureStatus = "merged"
	FeatureClosed  FeatureStatus = "closed"
)

// OpenFeatureStatuses are the statuses new mentions may still merge into.
var OpenFeatureStatuses = []string{string(FeatureOpen), string(FeaturePlanned)}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

const (
	SkipReasonLowConfidence = "low_confidence"
	SkipReasonDuplicate     = "duplicate"
	SkipReasonMalformed     = "malformed"
)
