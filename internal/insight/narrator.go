package insight

import (
	"context"
	"time"

	"salespulse/internal/types"
)

// Narrator turns a numeric finding into a short human-readable explanation,
// typically via a language model. Narration is best-effort: it runs under a
// bounded timeout and its failure never invalidates the finding.
type Narrator interface {
	Narrate(ctx context.Context, ins *types.Insight, current *types.SalesSnapshot) (string, error)
}

// Augment fills in the narrative text of each insight using the narrator,
// each call bounded by timeout. A narration failure is logged and leaves
// that insight's narrative empty; it is never propagated, so the enclosing
// sync job cannot fail on account of the language model.
//
// A nil narrator disables augmentation entirely.
func Augment(ctx context.Context, narrator Narrator, insights []*types.Insight, current *types.SalesSnapshot, timeout time.Duration, logger types.Logger) {
	if narrator == nil {
		return
	}

	for _, ins := range insights {
		nctx, cancel := context.WithTimeout(ctx, timeout)
		text, err := narrator.Narrate(nctx, ins, current)
		cancel()

		if err != nil {
			logger.Warn("narrative generation failed, emitting insight without narrative",
				"insight_id", ins.ID,
				"error", err.Error(),
			)
			continue
		}
		ins.Narrative = text
	}
}
