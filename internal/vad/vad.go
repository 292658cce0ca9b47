// Package vad classifies audio windows as speech or non-speech from adaptive
// energy thresholds.
package vad

import "math"

const (
	// DefaultThreshold is the speech/background energy ratio used when none is configured.
	DefaultThreshold = 0.6

	backgroundAlpha = 0.01
	shortTermAlpha  = 0.1
)

// Detector tracks the energy state of one audio stream. It is not safe for
// concurrent use; each stream owns its own Detector.
type Detector struct {
	threshold float64

	background float64
	shortTerm  float64
	frames     int64
}

// New returns a Detector. A non-positive threshold selects DefaultThreshold.
func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Classify reports whether window contains speech and folds its energy into the
// detector state. Empty and uniform windows (digital silence, DC) are silence
// and leave the state untouched, so they never seed the noise floor.
func (d *Detector) Classify(window []float32) bool {
	if Uniform(window) {
		return false
	}

	energy := RMS(window)
	d.updateBackground(energy)

	if d.frames == 1 {
		d.shortTerm = energy
	} else {
		d.shortTerm = shortTermAlpha*energy + (1-shortTermAlpha)*d.shortTerm
	}

	return d.shortTerm > d.threshold*d.background
}

// Reset clears all adaptive state.
func (d *Detector) Reset() {
	d.background = 0
	d.shortTerm = 0
	d.frames = 0
}

// Background returns the current noise-floor estimate.
func (d *Detector) Background() float64 {
	return d.background
}

// Frames returns how many windows have been classified since the last Reset.
func (d *Detector) Frames() int64 {
	return d.frames
}

// updateBackground seeds the noise floor from the first frame, then follows it
// slowly and only while the input stays below twice the current estimate.
func (d *Detector) updateBackground(energy float64) {
	if d.frames == 0 {
		d.background = energy
	} else if energy < 2*d.background {
		d.background = backgroundAlpha*energy + (1-backgroundAlpha)*d.background
	}
	d.frames++
}

// Uniform reports whether window is empty or every sample is identical.
func Uniform(window []float32) bool {
	if len(window) == 0 {
		return true
	}
	for _, s := range window[1:] {
		if s != window[0] {
			return false
		}
	}
	return true
}

// RMS returns the root-mean-square amplitude of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
