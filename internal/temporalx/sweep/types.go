package sweep

import "time"

const (
	WorkflowName     = "pipeline_sweep"
	ActivityRunStage = "pipeline_run_stage"
)

// DefaultStages is the order one sweep cycle walks the pipeline.
var DefaultStages = []string{
	"reap_locks",
	"score_events",
	"chunk_events",
	"extract_facts",
	"aggregate_facts",
	"reconcile_features",
}

type Input struct {
	Stages      []string      `json:"stages,omitempty"`
	WorkspaceID string        `json:"workspace_id,omitempty"`
	BatchSize   int           `json:"batch_size,omitempty"`
	Interval    time.Duration `json:"interval,omitempty"`
	// MaxPasses bounds back-to-back passes of one stage within a cycle.
	MaxPasses int `json:"max_passes,omitempty"`
	// Cycles counts completed cycles across continue-as-new.
	Cycles int `json:"cycles,omitempty"`
}

type StageRequest struct {
	Stage       string `json:"stage"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
}

type StageResult struct {
	Stage  string         `json:"stage"`
	More   bool           `json:"more"`
	Result map[string]any `json:"result,omitempty"`
}
