package guidance

import (
	"errors"
	"testing"
)

func TestNextIsTotal(t *testing.T) {
	valid := make(map[Phase]bool)
	for _, p := range Phases() {
		valid[p] = true
	}
	for _, p := range Phases() {
		for _, tr := range Triggers() {
			if got := Next(p, tr); !valid[got] {
				t.Errorf("Next(%s, %s) = %v, not a phase", p, tr, got)
			}
		}
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from Phase
		on   Trigger
		want Phase
	}{
		{Preparing, TriggerPrepare, SearchingRoute},
		{SearchingRoute, TriggerRouteFetched, ParsingRoute},
		{ParsingRoute, TriggerRouteParsed, AligningDirection},
		{AligningDirection, TriggerAligned, GuidingNavigation},
		{GuidingNavigation, TriggerArrived, Finished},
		{AligningDirection, TriggerArrived, Finished},

		{Preparing, TriggerFail, Failed},
		{SearchingRoute, TriggerFail, Failed},
		{GuidingNavigation, TriggerFail, Failed},
		{Finished, TriggerReset, Preparing},
		{Failed, TriggerReset, Preparing},

		// undefined pairs stay
		{Preparing, TriggerAligned, Preparing},
		{GuidingNavigation, TriggerAligned, GuidingNavigation},
		{Failed, TriggerFail, Failed},
		{Finished, TriggerFail, Finished},
		{Finished, TriggerArrived, Finished},
		{SearchingRoute, TriggerRouteParsed, SearchingRoute},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.on.String(), func(t *testing.T) {
			if got := Next(tt.from, tt.on); got != tt.want {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.on, got, tt.want)
			}
		})
	}
}

func TestPhaseClassification(t *testing.T) {
	for _, p := range Phases() {
		if p.Terminal() && p.Tracked() {
			t.Errorf("%s is both terminal and tracked", p)
		}
	}
	if !Finished.Terminal() || !Failed.Terminal() {
		t.Error("finished and error must be terminal")
	}
	if Phase(42).String() != "phase(42)" {
		t.Errorf("unknown phase string = %q", Phase(42).String())
	}
}

func TestStateString(t *testing.T) {
	s := State{Phase: Failed, Reason: "route request failed"}
	if s.String() != "error(route request failed)" {
		t.Errorf("String() = %q", s.String())
	}
	if s.Name() != "error" {
		t.Errorf("Name() = %q", s.Name())
	}
	if (State{Phase: GuidingNavigation}).String() != "guiding_navigation" {
		t.Error("unexpected guiding name")
	}
}

func TestFailureUnwrap(t *testing.T) {
	cause := errors.New("boom")
	f := newFailure(FetchFailure, "route request failed", cause)
	if !errors.Is(f, cause) {
		t.Error("failure should unwrap to its cause")
	}
	if !FetchFailure.Fatal() || SensorUnavailable.Fatal() {
		t.Error("fatal classification wrong")
	}
}
