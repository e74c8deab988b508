// Package workflow drives records through explicit state machines. A
// transition is legal only from its listed source states; the Tracker
// applies it together with its audit entry and patient notification in one
// transaction.
package workflow

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/notification"
)

type State string

type Action string

// Transition is one row of a machine's transition table. NotificationType
// is empty when the patient is not told about the change. Title is the
// outcome reported back to staff.
type Transition struct {
	Action           Action
	From             []State
	To               State
	AuditCode        string
	NotificationType string
	Title            string
	Priority         notification.Priority
}

func (t Transition) allows(from State) bool {
	return lo.Contains(t.From, from)
}

type Machine struct {
	Entity      string
	Module      string
	states      []State
	transitions []Transition
}

// NewMachine builds a machine for entity. Module is the system_logs module
// its transitions are recorded under. States lists every state the entity
// can be in, in display order.
func NewMachine(entity, module string, states []State, transitions ...Transition) *Machine {
	seen := map[Action]bool{}
	for _, t := range transitions {
		if seen[t.Action] {
			panic(fmt.Sprintf("workflow: duplicate action %q on %s", t.Action, entity))
		}
		seen[t.Action] = true
		if !lo.Contains(states, t.To) {
			panic(fmt.Sprintf("workflow: %s targets unknown state %q", t.Action, t.To))
		}
	}
	return &Machine{Entity: entity, Module: module, states: states, transitions: transitions}
}

// Lookup finds a transition by action regardless of source state.
func (m *Machine) Lookup(action Action) (Transition, bool) {
	return lo.Find(m.transitions, func(t Transition) bool { return t.Action == action })
}

// Next returns the transition action takes from state from. An unknown
// action is a validation error; a known action from the wrong state is an
// invalid_state error naming the current state.
func (m *Machine) Next(from State, action Action) (Transition, error) {
	t, ok := m.Lookup(action)
	if !ok {
		return Transition{}, apperr.Validation("unknown %s action %q", m.Entity, action)
	}
	if !t.allows(from) {
		return Transition{}, apperr.InvalidState("cannot %s: %s is %s", humanize(string(action)), m.Entity, humanize(string(from)))
	}
	return t, nil
}

// Allowed lists the actions legal from state from, in table order.
func (m *Machine) Allowed(from State) []Action {
	legal := lo.Filter(m.transitions, func(t Transition, _ int) bool { return t.allows(from) })
	return lo.Map(legal, func(t Transition, _ int) Action { return t.Action })
}

// IsTerminal reports whether no action leaves s.
func (m *Machine) IsTerminal(s State) bool {
	return lo.NoneBy(m.transitions, func(t Transition) bool { return t.allows(s) && t.To != s })
}

func (m *Machine) States() []State {
	return m.states
}

func (m *Machine) Actions() []Action {
	return lo.Map(m.transitions, func(t Transition, _ int) Action { return t.Action })
}

// IsState reports whether s is one of the machine's states.
func (m *Machine) IsState(s State) bool {
	return lo.Contains(m.states, s)
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
