package enums

type ModerationStatus string

const (
	ModerationStatusPending  ModerationStatus = "pending"
	ModerationStatusApproved ModerationStatus = "approved"
	ModerationStatusRejected ModerationStatus = "rejected"

	// ModerationStatusUnrecognized is returned by Classify for anything that is not one of the
	// three literals. It is never stored on an item.
	ModerationStatusUnrecognized ModerationStatus = ""
)

// Classify maps untrusted input to a moderation status. The match is exact and case-sensitive;
// nil, empty and near-miss values classify as ModerationStatusUnrecognized with ok=false.
func Classify(raw *string) (ModerationStatus, bool) {
	if raw == nil {
		return ModerationStatusUnrecognized, false
	}
	return ClassifyString(*raw)
}

func ClassifyString(raw string) (ModerationStatus, bool) {
	switch ModerationStatus(raw) {
	case ModerationStatusPending, ModerationStatusApproved, ModerationStatusRejected:
		return ModerationStatus(raw), true
	default:
		return ModerationStatusUnrecognized, false
	}
}

func (s ModerationStatus) Valid() bool {
	_, ok := ClassifyString(string(s))
	return ok
}

func (s ModerationStatus) Terminal() bool {
	return s == ModerationStatusApproved || s == ModerationStatusRejected
}

func (s ModerationStatus) String() string {
	return string(s)
}
