package quality

import (
	"context"
	"log/slog"
	"sync"
)

// Reporter logs and counts the QA issues of one import.
type Reporter struct {
	logger    *slog.Logger
	catalogue string
	entity    string

	mu     sync.Mutex
	counts map[Severity]int
	checks map[string]int
}

// NewReporter creates a reporter for an import of catalogue/entity.
func NewReporter(logger *slog.Logger, catalogue, entity string) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		logger:    logger,
		catalogue: catalogue,
		entity:    entity,
		counts:    make(map[Severity]int),
		checks:    make(map[string]int),
	}
}

// Add reports an issue.
func (r *Reporter) Add(issue Issue) {
	r.mu.Lock()
	r.counts[issue.Severity]++
	r.checks[issue.Check]++
	r.mu.Unlock()

	msg := issue.Msg
	if msg == "" {
		msg = "qa issue"
	}
	r.logger.Log(context.Background(), issue.Severity.level(), msg, issue.attrs()...)
	IssuesTotal.WithLabelValues(r.catalogue, r.entity, issue.Check, string(issue.Severity)).Inc()
}

// Count returns the number of issues reported at a severity.
func (r *Reporter) Count(s Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[s]
}

// Summary returns issue counts per severity and per check, keyed
// "num_<severity>" and "num_issues_<check>".
func (r *Reporter) Summary() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts)+len(r.checks))
	for s, n := range r.counts {
		out["num_"+string(s)] = n
	}
	for c, n := range r.checks {
		out["num_issues_"+c] = n
	}
	return out
}
