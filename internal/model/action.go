package model

import "time"

// ActionKind enumerates the reciprocal engagement actions.
type ActionKind string

const (
	ActionFollow ActionKind = "FOLLOW"
	ActionLike   ActionKind = "LIKE"
	ActionRepost ActionKind = "REPOST"
	ActionReply  ActionKind = "REPLY"
)

// Known reports whether k is one of the supported action kinds.
func (k ActionKind) Known() bool {
	switch k {
	case ActionFollow, ActionLike, ActionRepost, ActionReply:
		return true
	}
	return false
}

// ActionStatus is the approval state of a pending action. PENDING is the
// only non-terminal state; APPROVED and REJECTED never transition again.
type ActionStatus string

const (
	StatusPending  ActionStatus = "PENDING"
	StatusApproved ActionStatus = "APPROVED"
	StatusRejected ActionStatus = "REJECTED"
)

// PendingAction is a proposed engagement action awaiting human approval.
// It is created by engagement discovery and mutated only by the approval
// workflow: PENDING→APPROVED after the underlying action executed
// successfully, PENDING→REJECTED on explicit rejection.
type PendingAction struct {
	ID             string       `json:"id"`
	AccountID      string       `json:"account_id"`
	TargetUserID   string       `json:"target_user_id"`
	TargetUsername string       `json:"target_username,omitempty"`
	Kind           ActionKind   `json:"kind"`
	PostID         string       `json:"post_id,omitempty"`
	Content        string       `json:"content,omitempty"`
	Status         ActionStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}
