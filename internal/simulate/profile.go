package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Scenario names a heart-rate profile.
type Scenario string

// Available scenarios.
const (
	ScenarioRest     Scenario = "rest"     // steady resting rate
	ScenarioExercise Scenario = "exercise" // ramp up, plateau, recover
	ScenarioClimb    Scenario = "climb"    // sustained gradual increase
	ScenarioSpike    Scenario = "spike"    // sudden jump from rest
	ScenarioBrady    Scenario = "brady"    // slow drop below the low threshold
)

// Baseline rates and shape parameters, in bpm.
const (
	restingRate      = 62
	exercisePeakRate = 145
	climbRate        = 6 // bpm gained per minute
	spikeJump        = 75
	bradyFloor       = 34
	noiseAmplitude   = 3
)

// Scenario phase boundaries as fractions of the configured duration.
const (
	exerciseRampEnd    = 0.4
	exercisePlateauEnd = 0.7
	spikeOnset         = 0.5
	bradyOnset         = 0.3
)

// ParseScenario validates a scenario name.
func ParseScenario(s string) (Scenario, error) {
	switch Scenario(s) {
	case ScenarioRest, ScenarioExercise, ScenarioClimb, ScenarioSpike, ScenarioBrady:
		return Scenario(s), nil
	default:
		return "", fmt.Errorf("unknown scenario %q (want rest, exercise, climb, spike or brady)", s)
	}
}

// profile maps elapsed time within a run to a target heart rate.
type profile struct {
	scenario Scenario
	duration time.Duration
	rng      *rand.Rand
}

func newProfile(scenario Scenario, duration time.Duration, seed int64) *profile {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &profile{
		scenario: scenario,
		duration: duration,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// at returns the heart rate for the given elapsed time, with a small
// amount of noise so the stream looks like a real sensor.
func (p *profile) at(elapsed time.Duration) int {
	frac := 0.0
	if p.duration > 0 {
		frac = math.Min(elapsed.Seconds()/p.duration.Seconds(), 1.0)
	}

	var target float64
	switch p.scenario {
	case ScenarioExercise:
		target = p.exerciseAt(frac)
	case ScenarioClimb:
		target = restingRate + climbRate*elapsed.Minutes()
	case ScenarioSpike:
		target = restingRate
		if frac >= spikeOnset {
			target += spikeJump
		}
	case ScenarioBrady:
		target = p.bradyAt(frac)
	default:
		target = restingRate
	}

	noise := float64(p.rng.Intn(2*noiseAmplitude+1) - noiseAmplitude)
	value := int(math.Round(target + noise))
	if value < 1 {
		value = 1
	}
	return value
}

// exerciseAt ramps to a peak, holds it, then recovers toward rest.
func (p *profile) exerciseAt(frac float64) float64 {
	const span = exercisePeakRate - restingRate
	switch {
	case frac < exerciseRampEnd:
		return restingRate + span*(frac/exerciseRampEnd)
	case frac < exercisePlateauEnd:
		return exercisePeakRate
	default:
		recovery := (frac - exercisePlateauEnd) / (1 - exercisePlateauEnd)
		return exercisePeakRate - span*recovery
	}
}

// bradyAt holds rest then sinks linearly to the floor.
func (p *profile) bradyAt(frac float64) float64 {
	if frac < bradyOnset {
		return restingRate
	}
	const span = restingRate - bradyFloor
	drop := (frac - bradyOnset) / (1 - bradyOnset)
	return restingRate - span*drop
}
