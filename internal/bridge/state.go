package bridge

// PositionState tracks the hub-to-bus path.
type PositionState int32

const (
	PositionUnstarted PositionState = iota
	PositionListenerStarting
	PositionSynchronized
)

func (s PositionState) String() string {
	switch s {
	case PositionListenerStarting:
		return "position_listener_starting"
	case PositionSynchronized:
		return "synchronized"
	default:
		return "unstarted"
	}
}

func (s PositionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CommandState tracks the bus-to-hub path.
type CommandState int32

const (
	CommandUnstarted CommandState = iota
	CommandListenerActive
)

func (s CommandState) String() string {
	if s == CommandListenerActive {
		return "command_listener_active"
	}
	return "unstarted"
}

func (s CommandState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is the lifecycle of both paths. The bridge is ready once the
// position path is synchronized and the command listener is active.
type State struct {
	Position PositionState `json:"position_path"`
	Command  CommandState  `json:"command_path"`
}

// Ready reports whether both paths reached their active state.
func (s State) Ready() bool {
	return s.Position == PositionSynchronized && s.Command == CommandListenerActive
}
