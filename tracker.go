package main

import (
	"math"
)

const (
	// defaultTrackHz is where the search anchor returns after sustained
	// signal loss. Whistles tend to sit around 1-3 kHz, so 2 kHz is a
	// reasonable place to resume hunting from.
	defaultTrackHz = 2000.0

	// lowCutoffHz rejects rumble and mains hum during a global search.
	lowCutoffHz = 100.0
)

// TrackerConfig holds the tunables for ToneTracker. Magnitudes are on the
// 0-255 snapshot scale.
type TrackerConfig struct {
	SampleRate int // Hz
	FFTSize    int // transform size the snapshots were produced with

	Bandwidth      int     // half-bandwidth in bins for volume averaging
	NoiseFloor     float64 // minimum peak magnitude to consider at all
	Sharpness      float64 // peak must exceed this ratio over its surroundings
	Smoothing      float64 // fraction of the raw peak blended in per frame
	SearchWindow   int     // half-window in bins around the anchor
	LossLimit      int     // frames of loss tolerated before giving up
	NeighborRadius int     // half-width in bins of the sharpness neighborhood
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.FFTSize <= 0 {
		c.FFTSize = 2048
	}
	if c.Bandwidth <= 0 {
		c.Bandwidth = 3
	}
	if c.NoiseFloor <= 0 {
		c.NoiseFloor = 30
	}
	if c.Sharpness <= 0 {
		c.Sharpness = 2.5
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		c.Smoothing = 0.15
	}
	if c.SearchWindow <= 0 {
		c.SearchWindow = 20
	}
	if c.LossLimit <= 0 {
		c.LossLimit = 30
	}
	if c.NeighborRadius <= 0 {
		c.NeighborRadius = 10
	}
	return c
}

// TrackResult is the per-frame output of ToneTracker.Analyze. FreqIndex is
// only meaningful when Locked is true; Volume is 0 when unlocked.
type TrackResult struct {
	FreqIndex float64 // smoothed bin index, fractional
	Volume    float64 // average magnitude around the tracked bin
	Locked    bool
}

// ToneTracker follows a single narrow-band tone through successive
// frequency-magnitude snapshots. It biases the search toward the last
// known position, smooths the tracked bin exponentially and tolerates
// short signal dropouts.
type ToneTracker struct {
	cfg   TrackerConfig
	binHz float64

	anchor   float64 // search center, always a valid-ish bin index
	smoothed float64
	locked   bool
	lost     int // consecutive frames without an accepted peak
}

func NewToneTracker(cfg TrackerConfig) *ToneTracker {
	cfg = cfg.withDefaults()
	t := &ToneTracker{
		cfg:   cfg,
		binHz: float64(cfg.SampleRate) / float64(cfg.FFTSize),
	}
	t.anchor = t.defaultBin()
	return t
}

func (t *ToneTracker) defaultBin() float64 {
	return defaultTrackHz / t.binHz
}

func (t *ToneTracker) cutoffBin() int {
	return int(math.Ceil(lowCutoffHz / t.binHz))
}

// BinToHz converts a (possibly fractional) bin index to Hz.
func (t *ToneTracker) BinToHz(bin float64) float64 {
	return bin * t.binHz
}

// Analyze inspects one snapshot and advances the tracker state. It never
// fails: a snapshot with no usable tone simply yields an unlocked result.
func (t *ToneTracker) Analyze(snapshot []float64) TrackResult {
	peak, ok := t.searchPeak(snapshot)

	if ok {
		t.lost = 0
		if !t.locked {
			// Snap on first acquisition, no smoothing lag.
			t.smoothed = float64(peak)
			t.locked = true
		} else {
			t.smoothed += (float64(peak) - t.smoothed) * t.cfg.Smoothing
		}
		// Subsequent searches track the filtered position, not the
		// raw per-frame peaks.
		t.anchor = t.smoothed
	} else {
		t.lost++
		if t.lost > t.cfg.LossLimit {
			t.locked = false
			t.anchor = t.defaultBin()
		}
	}

	if !t.locked {
		return TrackResult{}
	}

	return TrackResult{
		FreqIndex: t.smoothed,
		Volume:    t.volumeAround(snapshot, int(math.Round(t.smoothed))),
		Locked:    true,
	}
}

// searchPeak looks near the anchor first and only then over the whole
// snapshot above the low-frequency cutoff.
func (t *ToneTracker) searchPeak(snapshot []float64) (int, bool) {
	if len(snapshot) == 0 {
		return 0, false
	}

	center := int(math.Round(t.anchor))
	if peak, ok := t.findPeak(snapshot, center-t.cfg.SearchWindow, center+t.cfg.SearchWindow); ok {
		return peak, true
	}

	return t.findPeak(snapshot, t.cutoffBin(), len(snapshot)-1)
}

// findPeak finds the loudest bin in [lo, hi] and accepts it only when it
// is above the noise floor and sharp relative to its surroundings. The
// sharpness test is what separates a whistle from broadband noise or
// voice.
func (t *ToneTracker) findPeak(snapshot []float64, lo, hi int) (int, bool) {
	lo = clampInt(lo, 0, len(snapshot)-1)
	hi = clampInt(hi, 0, len(snapshot)-1)
	if lo > hi {
		return 0, false
	}

	peak := lo
	for i := lo + 1; i <= hi; i++ {
		if snapshot[i] > snapshot[peak] {
			peak = i
		}
	}
	if snapshot[peak] < t.cfg.NoiseFloor {
		return 0, false
	}

	// Mean of the surrounding bins, leaving out the peak's own band so
	// its energy does not inflate the reference.
	nlo := clampInt(peak-t.cfg.NeighborRadius, 0, len(snapshot)-1)
	nhi := clampInt(peak+t.cfg.NeighborRadius, 0, len(snapshot)-1)
	sum, count := 0.0, 0
	for i := nlo; i <= nhi; i++ {
		if abs(i-peak) <= t.cfg.Bandwidth {
			continue
		}
		sum += snapshot[i]
		count++
	}
	if count > 0 && snapshot[peak] < t.cfg.Sharpness*(sum/float64(count)) {
		return 0, false
	}

	return peak, true
}

// volumeAround averages the magnitude in the tracked band.
func (t *ToneTracker) volumeAround(snapshot []float64, center int) float64 {
	if len(snapshot) == 0 {
		return 0
	}
	lo := clampInt(center-t.cfg.Bandwidth, 0, len(snapshot)-1)
	hi := clampInt(center+t.cfg.Bandwidth, 0, len(snapshot)-1)
	if lo > hi {
		return 0
	}

	sum := 0.0
	for i := lo; i <= hi; i++ {
		sum += snapshot[i]
	}
	return sum / float64(hi-lo+1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
