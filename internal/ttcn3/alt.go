package ttcn3

import (
	"errors"
	"reflect"
	"time"

	"github.com/testerman-project/testerman-core/internal/ttcn3/sysqueue"
)

// ActionResult controls alt's control flow after an alternative's
// action runs.
type ActionResult int

const (
	// ActionContinue runs the next action in the same alternative, or
	// ends the alt normally if this was the last one.
	ActionContinue ActionResult = iota
	// ActionRepeat restarts the whole alt from a fresh snapshot pass.
	ActionRepeat
	// ActionReturn leaves the alt immediately.
	ActionReturn
)

// ErrStopRequested and ErrKillRequested are returned by Alt when the
// TC's automatically-prepended stop-tc/kill-tc alternative matches.
// The caller (a TC's behaviour goroutine) must unwind and call
// Stop/Kill accordingly.
var (
	ErrStopRequested = errors.New("ttcn3: stop requested")
	ErrKillRequested = errors.New("ttcn3: kill requested")
)

// MatchContext carries the bound value/sender/extracted sub-matches an
// alternative's actions can read after a match.
type MatchContext struct {
	Value     Value
	Sender    *Component
	Extracted map[string]Value
}

// Condition is the sealed set of branch-condition kinds an Alternative
// may carry.
type Condition interface{ isCondition() }

// PortCondition matches a RECEIVE on a specific port.
type PortCondition struct {
	Port         *Port
	Template     Template
	SenderFilter *Component
}

func (PortCondition) isCondition() {}

// TimerCondition matches a timer's TIMEOUT event.
type TimerCondition struct{ Timer *Timer }

func (TimerCondition) isCondition() {}

// DoneCondition/KilledCondition match an individual component's
// done/killed event; Component nil matches any (any_done/any_killed),
// matched specially without consumption.
type DoneCondition struct{ Component *Component }
type KilledCondition struct{ Component *Component }

func (DoneCondition) isCondition()   {}
func (KilledCondition) isCondition() {}

// AllDoneCondition/AllKilledCondition match the group aggregate events.
type AllDoneCondition struct{}
type AllKilledCondition struct{}

func (AllDoneCondition) isCondition()   {}
func (AllKilledCondition) isCondition() {}

// Alternative is one alt branch: an optional guard, a branch
// condition, and a list of actions run in order on match.
type Alternative struct {
	Guard    func() bool
	Cond     Condition
	Actions  []func(ctx *MatchContext) ActionResult
}

const altPollInterval = 1 * time.Second

// Alt is the core TTCN-3 primitive: it
// prepends the TC's own stop-tc/kill-tc alternatives, groups the rest
// by port, and loops snapshot passes until a match executes a
// terminating action or a stop/kill is raised.
func Alt(tc *Component, alts []Alternative) error {
	full := append([]Alternative{
		{Cond: sysTriggerCondition(sysqueue.EventStopTC)},
		{Cond: sysTriggerCondition(sysqueue.EventKillTC)},
	}, alts...)

	for {
		matched, result, err := snapshotPass(tc, full)
		if err != nil {
			return err
		}
		if matched {
			switch result {
			case ActionRepeat:
				continue
			default:
				return nil
			}
		}

		if waitForActivity(tc, full) {
			continue
		}
	}
}

// sysTriggerCondition wraps a trigger-event kind for the automatically
// prepended stop-tc/kill-tc alternatives.
type sysTrigger struct{ kind sysqueue.EventKind }

func (sysTrigger) isCondition() {}

func sysTriggerCondition(kind sysqueue.EventKind) Condition { return sysTrigger{kind: kind} }

// snapshotPass runs one scan: system queue first, then each port at
// most once.
func snapshotPass(tc *Component, alts []Alternative) (matched bool, result ActionResult, err error) {
	sysEvents := tc.queue.Snapshot()
	for _, ev := range sysEvents {
		for _, alt := range alts {
			if alt.Guard != nil && !alt.Guard() {
				continue
			}
			if ok, trig := sysConditionMatches(alt.Cond, ev); ok {
				if trig == sysqueue.EventStopTC {
					tc.queue.Consume(sysqueue.EventStopTC, ev.Sender)
					return true, ActionReturn, ErrStopRequested
				}
				if trig == sysqueue.EventKillTC {
					tc.queue.Consume(sysqueue.EventKillTC, ev.Sender)
					return true, ActionReturn, ErrKillRequested
				}
				if !ev.Kind.IsState() {
					tc.queue.Consume(ev.Kind, ev.Sender)
				}
				res := runActions(alt.Actions, &MatchContext{})
				return true, res, nil
			}
		}
	}

	seenPorts := make(map[*Port]bool)
	for _, alt := range alts {
		pc, ok := alt.Cond.(PortCondition)
		if !ok || seenPorts[pc.Port] {
			continue
		}
		seenPorts[pc.Port] = true

		msg, popped := pc.Port.Pop()
		if !popped {
			continue
		}

		for _, candidate := range alts {
			candPC, ok := candidate.Cond.(PortCondition)
			if !ok || candPC.Port != pc.Port {
				continue
			}
			if candidate.Guard != nil && !candidate.Guard() {
				continue
			}
			if candPC.SenderFilter != nil && msg.Sender != candPC.SenderFilter {
				continue
			}
			mr := Match(candPC.Template, msg.Value)
			if !mr.Matched {
				continue
			}
			ctx := &MatchContext{Value: mr.Decoded, Sender: msg.Sender, Extracted: mr.Extracted}
			res := runActions(candidate.Actions, ctx)
			return true, res, nil
		}
		// No alternative matched: the popped message is discarded.
	}

	return false, ActionContinue, nil
}

func sysConditionMatches(cond Condition, ev sysqueue.Event) (bool, sysqueue.EventKind) {
	switch c := cond.(type) {
	case sysTrigger:
		if ev.Kind == c.kind {
			return true, c.kind
		}
	case TimerCondition:
		if ev.Kind == sysqueue.EventTimeout && ev.Sender == c.Timer.Name() {
			return true, ev.Kind
		}
	case DoneCondition:
		if ev.Kind == sysqueue.EventDone && (c.Component == nil || ev.Sender == c.Component.Name()) {
			return true, ev.Kind
		}
	case KilledCondition:
		if ev.Kind == sysqueue.EventKilled && (c.Component == nil || ev.Sender == c.Component.Name()) {
			return true, ev.Kind
		}
	case AllDoneCondition:
		if ev.Kind == sysqueue.EventAllDone {
			return true, ev.Kind
		}
	case AllKilledCondition:
		if ev.Kind == sysqueue.EventAllKilled {
			return true, ev.Kind
		}
	}
	return false, ""
}

func runActions(actions []func(ctx *MatchContext) ActionResult, ctx *MatchContext) ActionResult {
	for _, action := range actions {
		switch action(ctx) {
		case ActionRepeat:
			return ActionRepeat
		case ActionReturn:
			return ActionReturn
		}
	}
	return ActionReturn
}

// waitForActivity blocks until one of the relevant port notifiers or
// the system queue notifier fires, or the poll interval elapses.
// Returns true to restart the scan.
func waitForActivity(tc *Component, alts []Alternative) bool {
	listener := sysqueue.NewListener()
	tc.queue.RegisterListener(listener)
	defer tc.queue.UnregisterListener(listener)
	defer listener.Acknowledge()

	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(listener)},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(altPollInterval))},
	}
	seen := make(map[*Port]bool)
	for _, alt := range alts {
		pc, ok := alt.Cond.(PortCondition)
		if !ok || seen[pc.Port] {
			continue
		}
		seen[pc.Port] = true
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(pc.Port.Notifier())})
	}

	reflect.Select(cases)
	return true
}
