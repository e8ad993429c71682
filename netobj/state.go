package netobj

type ObjectState uint8

const (
	StateUnknown ObjectState = iota
	StateWaitingForState
	StateGenerating
	StateGenerated
	StateDisabled
	StatePendingDelete
	StateDeleted
)

var stateNames = [...]string{"unknown", "waiting_for_state", "generating", "generated", "disabled", "pending_delete", "deleted"}

func (s ObjectState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// StateSet is a group of states, membership only
type StateSet uint16

func SetOf(states ...ObjectState) StateSet {
	var s StateSet
	for _, st := range states {
		s |= 1 << st
	}
	return s
}

func (s StateSet) Has(st ObjectState) bool {
	return s&(1<<st) != 0
}

var (
	// DeletableStates accept TryRequestDelete
	DeletableStates = SetOf(StateGenerated, StateDisabled)
	// Live states own a constructed object
	Live = SetOf(StateGenerating, StateGenerated, StateDisabled, StatePendingDelete)
)

// next lists the legal transitions, Deleted is final
var next = [...]StateSet{
	StateUnknown:         SetOf(StateWaitingForState, StateGenerating),
	StateWaitingForState: SetOf(StateGenerating, StateDeleted),
	StateGenerating:      SetOf(StateGenerated),
	StateGenerated:       SetOf(StateDisabled, StatePendingDelete),
	StateDisabled:        SetOf(StateGenerated, StatePendingDelete),
	StatePendingDelete:   SetOf(StateDeleted),
	StateDeleted:         0,
}

func canTransition(from, to ObjectState) bool {
	return int(from) < len(next) && next[from].Has(to)
}
