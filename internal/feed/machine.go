package feed

import "time"

// ConnState is the lifecycle state of the push connection.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	// StateClosed is transient: a close moves straight on to StateReconnectPending.
	StateClosed
	StateReconnectPending
	StateStopped
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnectPending:
		return "reconnect_pending"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStart EventKind = iota
	EventOpened
	EventDialFailed
	EventClosed
	EventReconnectDue
	EventStop
)

func (k EventKind) String() string {
	return [...]string{"start", "opened", "dial_failed", "closed", "reconnect_due", "stop"}[k]
}

// Event drives Transition. Gen names the connection attempt the event belongs
// to; events from any attempt other than the current one are ignored.
type Event struct {
	Kind  EventKind
	Gen   uint64
	Clean bool
	Err   error
}

type EffectKind int

const (
	EffectDial EffectKind = iota
	EffectCloseConn
	EffectFetchSnapshot
	EffectStartRefresh
	EffectStopRefresh
	EffectScheduleReconnect
	EffectCancelReconnect
	EffectSetConnected
)

func (k EffectKind) String() string {
	return [...]string{"dial", "close_conn", "fetch_snapshot", "start_refresh", "stop_refresh",
		"schedule_reconnect", "cancel_reconnect", "set_connected"}[k]
}

// Effect is work the session performs after a transition.
type Effect struct {
	Kind      EffectKind
	Gen       uint64
	Delay     time.Duration
	Connected bool
}

// Machine is the push connection state. It is a value: Transition returns the
// next one and never mutates its receiver.
type Machine struct {
	State ConnState
	Gen   uint64

	reconnectDelay time.Duration
}

func NewMachine(reconnectDelay time.Duration) Machine {
	return Machine{State: StateIdle, reconnectDelay: reconnectDelay}
}

// Current reports whether gen is the open connection, i.e. whether its messages apply.
func (m Machine) Current(gen uint64) bool {
	return m.State == StateOpen && m.Gen == gen
}

// Transition is the connection lifecycle:
//
//	Idle -start-> Connecting -opened-> Open -closed-> Closed -> ReconnectPending
//	Connecting -dial_failed-> ReconnectPending -reconnect_due-> Connecting
//	any -stop-> Stopped
func Transition(m Machine, ev Event) (Machine, []Effect) {
	if m.State == StateStopped {
		if ev.Kind == EventOpened {
			return m, []Effect{{Kind: EffectCloseConn, Gen: ev.Gen}}
		}
		return m, nil
	}

	switch ev.Kind {
	case EventStart:
		if m.State != StateIdle {
			return m, nil
		}
		return m.dial()

	case EventOpened:
		if m.State != StateConnecting || ev.Gen != m.Gen {
			return m, []Effect{{Kind: EffectCloseConn, Gen: ev.Gen}}
		}
		m.State = StateOpen
		return m, []Effect{
			{Kind: EffectSetConnected, Connected: true},
			{Kind: EffectFetchSnapshot},
			{Kind: EffectStartRefresh},
		}

	case EventDialFailed:
		if m.State != StateConnecting || ev.Gen != m.Gen {
			return m, nil
		}
		m.State = StateReconnectPending
		return m, []Effect{{Kind: EffectScheduleReconnect, Gen: m.Gen, Delay: m.reconnectDelay}}

	case EventClosed:
		if ev.Gen != m.Gen {
			return m, []Effect{{Kind: EffectCloseConn, Gen: ev.Gen}}
		}
		switch m.State {
		case StateOpen:
			effects := []Effect{
				{Kind: EffectStopRefresh},
				{Kind: EffectSetConnected, Connected: false},
				{Kind: EffectCloseConn, Gen: m.Gen},
			}
			m.State = StateReconnectPending
			return m, append(effects, Effect{Kind: EffectScheduleReconnect, Gen: m.Gen, Delay: m.reconnectDelay})
		case StateConnecting:
			m.State = StateReconnectPending
			return m, []Effect{
				{Kind: EffectCloseConn, Gen: m.Gen},
				{Kind: EffectScheduleReconnect, Gen: m.Gen, Delay: m.reconnectDelay},
			}
		}
		return m, nil

	case EventReconnectDue:
		if m.State != StateReconnectPending || ev.Gen != m.Gen {
			return m, nil
		}
		return m.dial()

	case EventStop:
		prev := m.State
		m.State = StateStopped
		effects := []Effect{
			{Kind: EffectCancelReconnect},
			{Kind: EffectStopRefresh},
		}
		if prev == StateOpen || prev == StateConnecting {
			effects = append(effects, Effect{Kind: EffectCloseConn, Gen: m.Gen})
		}
		return m, append(effects, Effect{Kind: EffectSetConnected, Connected: false})
	}
	return m, nil
}

func (m Machine) dial() (Machine, []Effect) {
	m.Gen++
	m.State = StateConnecting
	return m, []Effect{{Kind: EffectDial, Gen: m.Gen}}
}
