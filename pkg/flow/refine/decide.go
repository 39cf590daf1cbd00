package refine

import "context"

// Action is the outcome of an interactive decision.
type Action int

const (
	// Accept applies the proposed replacement.
	Accept Action = iota
	// Reject leaves the word unedited.
	Reject
	// ChooseAlternative applies Edit.Alternatives[Decision.Index] instead.
	ChooseAlternative
)

// Decision answers a proposed Edit.
type Decision struct {
	Action Action
	Index  int
}

// Decider is consulted before each edit is applied. It may block; an error
// (including a cancelled context) skips the word and refinement goes on.
type Decider interface {
	Decide(ctx context.Context, proposed Edit) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, proposed Edit) (Decision, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, proposed Edit) (Decision, error) {
	return f(ctx, proposed)
}

// Option customizes a single refinement call.
type Option func(*callOptions)

type callOptions struct {
	decider Decider
}

// WithDecider enables interactive mode.
func WithDecider(d Decider) Option {
	return func(o *callOptions) { o.decider = d }
}

func collect(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
