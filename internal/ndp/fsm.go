package ndp

// This file implements the neighbor reachability state machine
// (RFC 4861 Section 7.3 and Appendix C). Like the rest of the package's
// decision logic it is a pure function over a transition table: the Stack
// looks up the transition, mutates the entry, and executes the returned
// actions after releasing its lock.
//
//	             send / NS(multicast)
//	 Created ---------------------------> Incomplete --solicits exhausted--> (deleted)
//	                                          |
//	               solicited NA               |  unsolicited NA / RA SLLA
//	          +-------------------------------+-------------------+
//	          v                                                   v
//	      Reachable --reachable time expired / LLA conflict--> Stale
//	          ^                                                   |
//	          |  confirmation                         packet sent |
//	          +------------------ Probe <------ Delay <-----------+
//	                                |   delay expired
//	                        solicits exhausted
//	                                v
//	                            (deleted)

// Event is an input to the neighbor state machine.
type Event uint8

const (
	// EventSend is raised when a packet is routed to the neighbor.
	EventSend Event = iota

	// EventReachableExpired is raised when the ReachableTime elapses.
	EventReachableExpired

	// EventDelayExpired is raised when DELAY_FIRST_PROBE_TIME elapses.
	EventDelayExpired

	// EventRetransExpired is raised when the retransmit timer elapses
	// with solicitations still remaining.
	EventRetransExpired

	// EventSolicitsExhausted is raised when the retransmit timer elapses
	// with no solicitations remaining.
	EventSolicitsExhausted

	// EventConfirm is raised by a solicited advertisement whose link
	// address is accepted (RFC 4861 Section 7.2.5).
	EventConfirm

	// EventUnconfirmedUpdate is raised by information that supplies a
	// link address without confirming reachability: an unsolicited
	// advertisement or a Router Advertisement source link-layer option.
	EventUnconfirmedUpdate

	// EventConflict is raised by an advertisement that carries a
	// different link address without the Override flag.
	EventConflict
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventSend:
		return "Send"
	case EventReachableExpired:
		return "ReachableExpired"
	case EventDelayExpired:
		return "DelayExpired"
	case EventRetransExpired:
		return "RetransExpired"
	case EventSolicitsExhausted:
		return "SolicitsExhausted"
	case EventConfirm:
		return "Confirm"
	case EventUnconfirmedUpdate:
		return "UnconfirmedUpdate"
	case EventConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Action is a side effect the caller executes after a transition.
type Action uint8

const (
	// ActionSendMulticastSolicit sends an NS to the solicited-node group.
	ActionSendMulticastSolicit Action = iota + 1

	// ActionSendUnicastSolicit sends an NS directly to the cached link address.
	ActionSendUnicastSolicit

	// ActionQueuePacket holds the packet until resolution completes.
	ActionQueuePacket

	// ActionTransmit hands the packet to the link layer immediately.
	ActionTransmit

	// ActionArmDelay loads the delay timer with DelayFirstProbeTime.
	ActionArmDelay

	// ActionArmProbe loads the unicast solicitation budget.
	ActionArmProbe

	// ActionArmReachable loads the reachable timer with ReachableTime.
	ActionArmReachable

	// ActionFlushQueue transmits every packet waiting for resolution.
	ActionFlushQueue

	// ActionDelete tears the entry down (destination unreachable).
	ActionDelete
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionSendMulticastSolicit:
		return "SendMulticastSolicit"
	case ActionSendUnicastSolicit:
		return "SendUnicastSolicit"
	case ActionQueuePacket:
		return "QueuePacket"
	case ActionTransmit:
		return "Transmit"
	case ActionArmDelay:
		return "ArmDelay"
	case ActionArmProbe:
		return "ArmProbe"
	case ActionArmReachable:
		return "ArmReachable"
	case ActionFlushQueue:
		return "FlushQueue"
	case ActionDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// stateEvent is the transition table key.
type stateEvent struct {
	state NeighborState
	event Event
}

// transition is the target state and side effects of one table row.
type transition struct {
	newState NeighborState
	actions  []Action
}

// FSMResult holds the outcome of applying an event.
type FSMResult struct {
	// OldState is the state before the event was applied.
	OldState NeighborState

	// NewState is the state after the event was applied.
	NewState NeighborState

	// Actions lists the side effects that the caller must execute.
	// Empty when the event is ignored.
	Actions []Action

	// Changed is true when NewState differs from OldState.
	Changed bool
}

// fsmTable is the complete neighbor transition table. Unlisted pairs are
// ignored.
//
//nolint:gochecknoglobals // FSM transition table is intentionally package-level.
var fsmTable = map[stateEvent]transition{
	// Send path (RFC 4861 Section 7.2.2, 7.3.3).
	{StateCreated, EventSend}: {
		newState: StateIncomplete,
		actions:  []Action{ActionQueuePacket, ActionSendMulticastSolicit},
	},
	{StateIncomplete, EventSend}: {
		newState: StateIncomplete,
		actions:  []Action{ActionQueuePacket},
	},
	{StateReachable, EventSend}: {
		newState: StateReachable,
		actions:  []Action{ActionTransmit},
	},
	{StateStale, EventSend}: {
		newState: StateDelay,
		actions:  []Action{ActionTransmit, ActionArmDelay},
	},
	{StateDelay, EventSend}: {
		newState: StateDelay,
		actions:  []Action{ActionTransmit},
	},
	{StateProbe, EventSend}: {
		newState: StateProbe,
		actions:  []Action{ActionTransmit},
	},

	// Timers.
	{StateReachable, EventReachableExpired}: {
		newState: StateStale,
	},
	{StateDelay, EventDelayExpired}: {
		newState: StateProbe,
		actions:  []Action{ActionArmProbe},
	},
	{StateIncomplete, EventRetransExpired}: {
		newState: StateIncomplete,
		actions:  []Action{ActionSendMulticastSolicit},
	},
	{StateProbe, EventRetransExpired}: {
		newState: StateProbe,
		actions:  []Action{ActionSendUnicastSolicit},
	},
	{StateIncomplete, EventSolicitsExhausted}: {
		newState: StateInvalid,
		actions:  []Action{ActionDelete},
	},
	{StateProbe, EventSolicitsExhausted}: {
		newState: StateInvalid,
		actions:  []Action{ActionDelete},
	},

	// Advertisements (RFC 4861 Section 7.2.5, 7.2.6).
	{StateIncomplete, EventConfirm}: {
		newState: StateReachable,
		actions:  []Action{ActionArmReachable, ActionFlushQueue},
	},
	{StateReachable, EventConfirm}: {
		newState: StateReachable,
		actions:  []Action{ActionArmReachable},
	},
	{StateStale, EventConfirm}: {
		newState: StateReachable,
		actions:  []Action{ActionArmReachable},
	},
	{StateDelay, EventConfirm}: {
		newState: StateReachable,
		actions:  []Action{ActionArmReachable},
	},
	{StateProbe, EventConfirm}: {
		newState: StateReachable,
		actions:  []Action{ActionArmReachable},
	},
	{StateCreated, EventUnconfirmedUpdate}: {
		newState: StateStale,
	},
	{StateIncomplete, EventUnconfirmedUpdate}: {
		newState: StateStale,
		actions:  []Action{ActionFlushQueue},
	},
	{StateReachable, EventUnconfirmedUpdate}: {
		newState: StateStale,
	},
	{StateStale, EventUnconfirmedUpdate}: {
		newState: StateStale,
	},
	{StateDelay, EventUnconfirmedUpdate}: {
		newState: StateStale,
	},
	{StateProbe, EventUnconfirmedUpdate}: {
		newState: StateStale,
	},
	{StateReachable, EventConflict}: {
		newState: StateStale,
	},
}

// ApplyEvent returns the transition for event in state. The function is
// pure; unlisted combinations return an unchanged result with no actions.
func ApplyEvent(state NeighborState, event Event) FSMResult {
	tr, ok := fsmTable[stateEvent{state: state, event: event}]
	if !ok {
		return FSMResult{OldState: state, NewState: state}
	}

	return FSMResult{
		OldState: state,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  tr.newState != state,
	}
}
