package llm

import (
	"context"
	"log/slog"
)

// Disabled is the no-op capability. The pipeline still runs end to end
// (text, sections, an empty validated item set) so the rest of the
// system can be exercised without any model configured.
type Disabled struct {
	logger *slog.Logger
}

func NewDisabled(logger *slog.Logger) *Disabled {
	if logger == nil {
		logger = slog.Default()
	}
	return &Disabled{logger: logger}
}

func (d *Disabled) ExtractItems(_ context.Context, req ExtractRequest) ([]CandidateItem, []byte, error) {
	d.logger.Debug("llm.extract.disabled", "title_path", req.TitlePath, "text_len", len(req.PagesText))
	return []CandidateItem{}, nil, nil
}
