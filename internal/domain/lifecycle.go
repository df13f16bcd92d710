package domain

// TransitionKind names a change of bot reference
type TransitionKind string

const (
	TransitionAssign   TransitionKind = "assign"
	TransitionUnassign TransitionKind = "unassign"
	TransitionReassign TransitionKind = "reassign"
	TransitionNone     TransitionKind = "none"
)

// Transition records one application of SetBot
type Transition struct {
	From    VMStatus
	To      VMStatus
	FromBot *string
	ToBot   *string
}

// Kind classifies the transition
func (t Transition) Kind() TransitionKind {
	switch {
	case SameRef(t.FromBot, t.ToBot):
		return TransitionNone
	case t.FromBot == nil:
		return TransitionAssign
	case t.ToBot == nil:
		return TransitionUnassign
	default:
		return TransitionReassign
	}
}

// StatusFor derives the status implied by a bot reference. Status is never
// set any other way.
func StatusFor(botID *string) VMStatus {
	if botID == nil {
		return StatusFree
	}
	return StatusAssigned
}

// SetBot moves the VM to the state implied by botID. Any state may move to
// any other; Assigned -> Assigned replaces the bot without passing through Free.
func (vm *VM) SetBot(botID *string) Transition {
	t := Transition{
		From:    vm.Status,
		FromBot: vm.BotID,
		ToBot:   cloneRef(botID),
	}
	vm.BotID = t.ToBot
	vm.Status = StatusFor(vm.BotID)
	t.To = vm.Status
	return t
}

// Consistent reports whether status and bot reference agree
func (vm *VM) Consistent() bool {
	return vm.Status == StatusFor(vm.BotID)
}
