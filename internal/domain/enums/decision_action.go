package enums

type DecisionAction string

const (
	DecisionActionApprove DecisionAction = "approve"
	DecisionActionReject  DecisionAction = "reject"
	DecisionActionReopen  DecisionAction = "reopen"
)

// ActionForTransition names the audit action for a transition into target.
func ActionForTransition(target ModerationStatus) DecisionAction {
	switch target {
	case ModerationStatusApproved:
		return DecisionActionApprove
	case ModerationStatusRejected:
		return DecisionActionReject
	default:
		return DecisionActionReopen
	}
}
