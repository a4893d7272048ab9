package guidance

import (
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/alignment"
	"github.com/teslashibe/go-wayfinder/pkg/heading"
	"github.com/teslashibe/go-wayfinder/pkg/position"
)

// Config holds all tunable parameters for a guidance session.
type Config struct {
	// Timing
	AlignmentInterval time.Duration `yaml:"alignment_interval" json:"alignment_interval" validate:"gt=0"` // Alignment loop period
	GuidanceInterval  time.Duration `yaml:"guidance_interval" json:"guidance_interval" validate:"gt=0"`   // Guidance loop period
	SpeakInterval     time.Duration `yaml:"speak_interval" json:"speak_interval" validate:"gte=0"`        // Minimum gap between corrections
	FetchTimeout      time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gt=0"`           // Route request deadline

	// Distances (meters)
	ArrivalRadius float64 `yaml:"arrival_radius" json:"arrival_radius" validate:"gt=0"` // Announce waypoints inside this radius
	SkipDistance  float64 `yaml:"skip_distance" json:"skip_distance" validate:"gte=0"`  // Guidance ignores waypoints closer than this

	// HeadingPublishDelta suppresses heading updates smaller than this many
	// degrees so alignment decisions do not flicker.
	HeadingPublishDelta float64 `yaml:"heading_publish_delta" json:"heading_publish_delta" validate:"gte=0,lt=180"`

	Alignment alignment.Config `yaml:"alignment" json:"alignment"`
	Heading   heading.Config   `yaml:"heading" json:"heading"`
	Position  position.Config  `yaml:"position" json:"position"`

	Messages Messages `yaml:"messages" json:"messages"`
}

// Messages are the phrases spoken during guidance.
type Messages struct {
	TurnLeft     string `yaml:"turn_left" json:"turn_left"`
	TurnRight    string `yaml:"turn_right" json:"turn_right"`
	CorrectLeft  string `yaml:"correct_left" json:"correct_left"`
	CorrectRight string `yaml:"correct_right" json:"correct_right"`
	Aligned      string `yaml:"aligned" json:"aligned"`
	Arrival      string `yaml:"arrival" json:"arrival"`
	Finished     string `yaml:"finished" json:"finished"`
	Failed       string `yaml:"failed" json:"failed"`
}

// DefaultMessages returns English phrases.
func DefaultMessages() Messages {
	return Messages{
		TurnLeft:     "Turn left",
		TurnRight:    "Turn right",
		CorrectLeft:  "Turn your phone to the left",
		CorrectRight: "Turn your phone to the right",
		Aligned:      "Direction aligned. Start walking.",
		Arrival:      "You have arrived at your destination.",
		Finished:     "Guidance has ended.",
		Failed:       "Navigation stopped.",
	}
}

// DefaultConfig returns the recommended configuration for walking guidance.
func DefaultConfig() Config {
	return Config{
		// Timing
		AlignmentInterval: 150 * time.Millisecond, // ~0.45s to confirm alignment
		GuidanceInterval:  500 * time.Millisecond,
		SpeakInterval:     2500 * time.Millisecond,
		FetchTimeout:      15 * time.Second,

		// Distances
		ArrivalRadius: 10,
		SkipDistance:  8,

		HeadingPublishDelta: 3,

		Alignment: alignment.DefaultConfig(),
		Heading:   heading.DefaultConfig(),
		Position:  position.DefaultConfig(),

		Messages: DefaultMessages(),
	}
}

// FastConfig returns a configuration with short loop periods, for simulators
// and tests.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.AlignmentInterval = 10 * time.Millisecond
	cfg.GuidanceInterval = 20 * time.Millisecond
	cfg.SpeakInterval = 100 * time.Millisecond
	return cfg
}

// withDefaults fills zero values so a partially specified Config still works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AlignmentInterval <= 0 {
		c.AlignmentInterval = d.AlignmentInterval
	}
	if c.GuidanceInterval <= 0 {
		c.GuidanceInterval = d.GuidanceInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.ArrivalRadius <= 0 {
		c.ArrivalRadius = d.ArrivalRadius
	}
	if c.Alignment.Threshold <= 0 {
		c.Alignment.Threshold = d.Alignment.Threshold
	}
	if c.Alignment.StableChecks <= 0 {
		c.Alignment.StableChecks = d.Alignment.StableChecks
	}
	if c.Heading.Alpha <= 0 {
		c.Heading.Alpha = d.Heading.Alpha
	}
	if c.Position.MinAccuracy <= 0 {
		c.Position.MinAccuracy = d.Position.MinAccuracy
	}
	m, dm := &c.Messages, d.Messages
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.TurnLeft, dm.TurnLeft)
	fill(&m.TurnRight, dm.TurnRight)
	fill(&m.CorrectLeft, dm.CorrectLeft)
	fill(&m.CorrectRight, dm.CorrectRight)
	fill(&m.Aligned, dm.Aligned)
	fill(&m.Arrival, dm.Arrival)
	fill(&m.Finished, dm.Finished)
	return c
}
