package models

import "context"

// PipelineProvider is the core interface the external content-generation
// pipeline must satisfy. The pipeline is opaque: it may be slow, it may fail
// transiently, and its internal stages (research, drafting, editing) are not
// observable from here. Never call a concrete pipeline directly; always
// inject this interface.
type PipelineProvider interface {
	// Generate runs the full pipeline for a topic and returns references to
	// the produced artifacts. Implementations must honor ctx cancellation.
	Generate(ctx context.Context, topic string) (Artifacts, error)
	// Name returns the provider identifier (e.g., "crew", "mock").
	Name() string
}

// Artifacts holds references to the outputs of one pipeline run.
type Artifacts struct {
	ReportPath    string  `json:"report_path"`
	BlogPath      string  `json:"blog_path"`
	TokensUsed    int     `json:"tokens_used"`
	EstimatedCost float64 `json:"estimated_cost"`
}
