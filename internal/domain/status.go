package domain

// Status is the lifecycle state of a donation or payout.
type Status string

const (
	// StatusPending is the initial state of every transaction.
	StatusPending Status = "pending"
	// StatusSuccess is the terminal success state of a donation.
	StatusSuccess Status = "success"
	// StatusCompleted is the terminal success state of a payout.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal failure state of both kinds.
	StatusFailed Status = "failed"
)

// Kind distinguishes the two transaction flavours handled by the gateway.
type Kind string

const (
	KindDonation Kind = "donation"
	KindPayout   Kind = "payout"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ValidFor reports whether s belongs to the status vocabulary of kind k.
func (s Status) ValidFor(k Kind) bool {
	switch s {
	case StatusPending, StatusFailed:
		return true
	case StatusSuccess:
		return k == KindDonation
	case StatusCompleted:
		return k == KindPayout
	}
	return false
}

// CanTransition reports whether a record of kind k may move from one status
// to another. Only pending records move, and only to a different status of
// the same vocabulary.
func CanTransition(k Kind, from, to Status) bool {
	if from != StatusPending || from == to {
		return false
	}
	return to.ValidFor(k)
}
