package model

// ScopeKind selects the breadth of a pipeline run.
type ScopeKind string

const (
	ScopeSource     ScopeKind = "source"      // one named source
	ScopeAllSources ScopeKind = "all-sources" // every active source, legacy single-topic mode
	ScopeTopic      ScopeKind = "topic"       // one named topic's sources and accounts
	ScopeAllTopics  ScopeKind = "all-topics"  // each active topic, independently
	ScopeCrossTopic ScopeKind = "cross-topic" // every topic's articles, per-article commit
	ScopeUniversal  ScopeKind = "universal"   // one article fanned out to all accounts
)

// Scope names a pipeline run's selection breadth. Name is the source or
// topic name for the kinds that need one.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Name string    `json:"name,omitempty"`
}

// PublishOutcome is one account's result within a run. One account's
// failure never affects another's outcome.
type PublishOutcome struct {
	AccountID string `json:"account_id"`
	Topic     string `json:"topic,omitempty"`
	Success   bool   `json:"success"`
	PostID    string `json:"post_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunResult aggregates a single pipeline pass.
type RunResult struct {
	Scope     Scope            `json:"scope"`
	Article   *Article         `json:"article,omitempty"`
	Outcomes  []PublishOutcome `json:"outcomes,omitempty"`
	Published int              `json:"published"`
	Skipped   bool             `json:"skipped"`
	Reason    string           `json:"reason,omitempty"`
}

// Succeeded reports whether at least one account published. This is the
// commit signal for the duplicate guard.
func (r RunResult) Succeeded() bool {
	return r.Published > 0
}

// BatchOutcome is the per-id result of a batch approval.
type BatchOutcome struct {
	ActionID string `json:"action_id"`
	Approved bool   `json:"approved"`
	Error    string `json:"error,omitempty"`
}
