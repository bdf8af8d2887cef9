package registry

import "github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"

// Action is what the server does with an accepted request.
type Action int

const (
	// ActionFull stores endpoint and counter.
	ActionFull Action = iota
	// ActionCounterOnly refreshes the counter of a known peer.
	ActionCounterOnly
	// ActionQuery leaves the table untouched; the reply still carries it.
	ActionQuery
)

// ActionFor resolves the control flags of a request.
//
//	keep-endpoint  keep-record  action
//	0              0            full
//	0              1            full (contradictory, normalized)
//	1              0            counter only
//	1              1            query
func ActionFor(f protocol.Flags) Action {
	switch f.Normalize() {
	case 0:
		return ActionFull
	case protocol.FlagKeepEndpoint:
		return ActionCounterOnly
	default:
		return ActionQuery
	}
}

func (a Action) String() string {
	switch a {
	case ActionFull:
		return "full"
	case ActionCounterOnly:
		return "counter-only"
	default:
		return "query"
	}
}
