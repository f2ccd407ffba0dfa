package mock

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/draftsmith/internal/pipeline/pipeerr"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

// MockProvider satisfies models.PipelineProvider for testing.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, topic string) (models.Artifacts, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, topic string) (models.Artifacts, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, topic)
	}
	return models.Artifacts{}, nil
}

// NewProvider returns a MockProvider that succeeds with deterministic artifacts.
func NewProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, topic string) (models.Artifacts, error) {
			return models.Artifacts{
				ReportPath:    fmt.Sprintf("output/strategic_report_%s.md", slug(topic)),
				BlogPath:      fmt.Sprintf("output/blog_post_%s.md", slug(topic)),
				TokensUsed:    15000,
				EstimatedCost: 0.675,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ string) (models.Artifacts, error) {
			return models.Artifacts{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ string) (models.Artifacts, error) {
			<-ctx.Done()
			return models.Artifacts{}, pipeerr.Transient(ctx.Err())
		},
	}
}

func slug(topic string) string {
	out := make([]rune, 0, len(topic))
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '_')
		}
	}
	return string(out)
}

// Compile-time check that MockProvider implements PipelineProvider.
var _ models.PipelineProvider = (*MockProvider)(nil)
