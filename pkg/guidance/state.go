package guidance

import (
	"fmt"
	"time"
)

// Phase is the navigation state variant.
type Phase int

const (
	Preparing Phase = iota
	SearchingRoute
	ParsingRoute
	AligningDirection
	GuidingNavigation
	Finished
	Failed
)

var phaseNames = [...]string{
	Preparing:         "preparing",
	SearchingRoute:    "searching_route",
	ParsingRoute:      "parsing_route",
	AligningDirection: "aligning_direction",
	GuidingNavigation: "guiding_navigation",
	Finished:          "finished",
	Failed:            "error",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Phases lists every phase in order.
func Phases() []Phase {
	return []Phase{Preparing, SearchingRoute, ParsingRoute, AligningDirection, GuidingNavigation, Finished, Failed}
}

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p == Finished || p == Failed
}

// Tracked reports whether position tracking runs in this phase.
func (p Phase) Tracked() bool {
	return p == AligningDirection || p == GuidingNavigation
}

// Trigger is an input to the state machine.
type Trigger int

const (
	TriggerPrepare Trigger = iota
	TriggerRouteFetched
	TriggerRouteParsed
	TriggerAligned
	TriggerArrived
	TriggerFail
	TriggerReset
)

var triggerNames = [...]string{
	TriggerPrepare:      "prepare",
	TriggerRouteFetched: "route_fetched",
	TriggerRouteParsed:  "route_parsed",
	TriggerAligned:      "aligned",
	TriggerArrived:      "arrived",
	TriggerFail:         "fail",
	TriggerReset:        "reset",
}

func (t Trigger) String() string {
	if t < 0 || int(t) >= len(triggerNames) {
		return fmt.Sprintf("trigger(%d)", int(t))
	}
	return triggerNames[t]
}

// Triggers lists every trigger.
func Triggers() []Trigger {
	return []Trigger{TriggerPrepare, TriggerRouteFetched, TriggerRouteParsed, TriggerAligned, TriggerArrived, TriggerFail, TriggerReset}
}

// transitions holds every defined (phase, trigger) pair. Pairs not listed
// leave the phase unchanged.
var transitions = map[Phase]map[Trigger]Phase{
	Preparing: {
		TriggerPrepare: SearchingRoute,
		TriggerFail:    Failed,
	},
	SearchingRoute: {
		TriggerRouteFetched: ParsingRoute,
		TriggerFail:         Failed,
	},
	ParsingRoute: {
		TriggerRouteParsed: AligningDirection,
		TriggerFail:        Failed,
	},
	AligningDirection: {
		TriggerAligned: GuidingNavigation,
		TriggerArrived: Finished,
		TriggerFail:    Failed,
	},
	GuidingNavigation: {
		TriggerArrived: Finished,
		TriggerFail:    Failed,
	},
	Finished: {
		TriggerReset: Preparing,
	},
	Failed: {
		TriggerReset: Preparing,
	},
}

// Next returns the phase reached from p on t. It is total: undefined pairs
// return p.
func Next(p Phase, t Trigger) Phase {
	if next, ok := transitions[p][t]; ok {
		return next
	}
	return p
}

// State is the current navigation state.
type State struct {
	Phase   Phase     `json:"-"`
	Reason  string    `json:"reason,omitempty"`
	Failure *Failure  `json:"-"`
	Session string    `json:"session"`
	Since   time.Time `json:"since"`
}

// Name returns the phase name.
func (s State) Name() string {
	return s.Phase.String()
}

func (s State) String() string {
	if s.Phase == Failed && s.Reason != "" {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return s.Phase.String()
}
