// Package pipeline wraps the external multi-agent content-generation service.
// The pipeline is treated as opaque: Draftsmith hands it a topic and gets back
// artifact references or a classified error.
package pipeline

import (
	"fmt"

	"github.com/kiranshivaraju/draftsmith/internal/config"
	"github.com/kiranshivaraju/draftsmith/internal/pipeline/crew"
	"github.com/kiranshivaraju/draftsmith/internal/pipeline/mock"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

// NewProvider constructs the configured pipeline provider.
// Called once at server startup.
func NewProvider(cfg config.PipelineConfig) (models.PipelineProvider, error) {
	switch cfg.Provider {
	case "crew":
		return crew.NewProvider(cfg.Crew, cfg.Timeout), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown pipeline provider %q: must be one of crew, mock", cfg.Provider)
	}
}
