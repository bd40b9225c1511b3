package domain

// ReviewStatus of an analysis in the review workflow. The state machine
// has a single non-terminal state: pending can move to reviewed or
// rejected, and both of those are final.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusReviewed ReviewStatus = "reviewed"
	StatusRejected ReviewStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	return s == StatusPending || s == StatusReviewed || s == StatusRejected
}

// Terminal reports whether s admits no further transitions.
func (s ReviewStatus) Terminal() bool {
	return s == StatusReviewed || s == StatusRejected
}

// CanTransitionTo reports whether the s -> next transition is allowed.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	return s == StatusPending && next.Terminal()
}

// ReviewDecision is the verb a reviewer submits.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// Status maps a decision to the terminal status it produces.
func (d ReviewDecision) Status() (ReviewStatus, bool) {
	switch d {
	case DecisionApprove:
		return StatusReviewed, true
	case DecisionReject:
		return StatusRejected, true
	default:
		return "", false
	}
}
