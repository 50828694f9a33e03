package middleware

import "net/http"

// Stage is one named policy in the request pipeline. Every stage either handles the
// request itself (rejecting, answering a preflight) or delegates to the next one.
type Stage struct {
	Name       string
	Middleware func(http.Handler) http.Handler
}

// Chain is an ordered list of stages. The first stage is the outermost wrapper and
// therefore sees the request first.
type Chain struct {
	stages []Stage
}

// NewChain creates a chain from stages in execution order
func NewChain(stages ...Stage) *Chain {
	c := &Chain{}
	return c.Append(stages...)
}

// Append returns a new chain with stages added after the existing ones.
// Stages without a middleware are skipped.
func (c *Chain) Append(stages ...Stage) *Chain {
	out := &Chain{stages: make([]Stage, 0, len(c.stages)+len(stages))}
	out.stages = append(out.stages, c.stages...)
	for _, s := range stages {
		if s.Middleware != nil {
			out.stages = append(out.stages, s)
		}
	}
	return out
}

// Names returns the stage names in execution order
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Then wraps h with every stage of the chain
func (c *Chain) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(c.stages) - 1; i >= 0; i-- {
		h = c.stages[i].Middleware(h)
	}
	return h
}
