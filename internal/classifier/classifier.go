package classifier

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// Classifier combines the rule table with an optional summarizer.
type Classifier struct {
	rules      *Ruleset
	summarizer ports.Summarizer
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a classifier. summarizer may be nil, in which case every
// summary comes from FallbackSummary.
func New(rules *Ruleset, summarizer ports.Summarizer, timeout time.Duration, logger *slog.Logger) *Classifier {
	if rules == nil {
		rules = MustDefault()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{rules: rules, summarizer: summarizer, timeout: timeout, logger: logger}
}

// Classify assigns tier, areas, action items and a summary to doc. A
// summarizer failure degrades to the extractive summary and never fails
// the call.
func (c *Classifier) Classify(ctx context.Context, doc domain.RegulatoryDocument) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}

	res := Evaluate(c.rules, doc.Title+"\n"+doc.BodyText)

	summary, source := c.summarize(ctx, doc)
	if source == domain.SummaryFromModel {
		res = res.merge(Evaluate(c.rules, summary))
	}

	return domain.Classification{
		Tier:          res.Tier,
		Score:         res.Score,
		Indicators:    res.Indicators,
		Areas:         res.Areas,
		ActionItems:   ActionItems(res.Tier, res.Areas),
		Summary:       summary,
		SummarySource: source,
	}, nil
}

func (c *Classifier) summarize(ctx context.Context, doc domain.RegulatoryDocument) (string, string) {
	if c.summarizer == nil {
		return FallbackSummary(doc.BodyText), domain.SummaryFromFallback
	}

	sctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.summarizer.Summarize(sctx, doc.Title+"\n\n"+doc.BodyText)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		c.logger.Warn("summarizer unavailable, using fallback summary",
			"source", doc.SourceID, "ref", doc.RefOrTitle(), "error", err)
		return FallbackSummary(doc.BodyText), domain.SummaryFromFallback
	}
	return out, domain.SummaryFromModel
}
