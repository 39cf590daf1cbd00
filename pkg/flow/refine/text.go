package refine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// TextResult is the outcome for a multi-sentence text.
type TextResult struct {
	Original  string   `json:"original"`
	Refined   string   `json:"refined"`
	Sentences []Result `json:"sentences"`
}

// Edits returns every edit of every sentence, in order.
func (r TextResult) Edits() []Edit {
	var out []Edit
	for _, s := range r.Sentences {
		out = append(out, s.Edits...)
	}
	return out
}

// RefineText splits text into sentences, refines each independently and
// joins the refined sentences with single spaces. Cancellation is checked
// between sentences.
func (p *Pipeline) RefineText(ctx context.Context, text string, opts ...Option) (TextResult, error) {
	sentences, err := p.constraints.SplitSentences(ctx, text)
	if err != nil {
		return TextResult{}, err
	}

	res := TextResult{Original: text, Sentences: make([]Result, 0, len(sentences))}
	refined := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if err := ctx.Err(); err != nil {
			return TextResult{}, err
		}
		r, err := p.RefineSentence(ctx, s, opts...)
		if err != nil {
			return TextResult{}, err
		}
		res.Sentences = append(res.Sentences, r)
		refined = append(refined, r.Refined)
	}
	res.Refined = strings.Join(refined, " ")
	return res, nil
}

// RefineBatch refines independent texts concurrently, at most
// Config.Workers at a time. Results keep the order of texts; the first
// failure cancels the rest.
func (p *Pipeline) RefineBatch(ctx context.Context, texts []string, opts ...Option) ([]TextResult, error) {
	results := make([]TextResult, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			r, err := p.RefineText(ctx, text, opts...)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
