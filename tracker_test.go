package main

import (
	"math"
	"testing"
)

// Test trackers run at 44.1 kHz with 2048-point transforms: 1024 bins of
// ~21.5 Hz each. The default anchor (~2 kHz) lands near bin 93, the low
// cutoff near bin 5.
func newTestTracker() *ToneTracker {
	return NewToneTracker(TrackerConfig{
		SampleRate: 44100,
		FFTSize:    2048,
	})
}

func flatSnapshot(n int, level float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = level
	}
	return s
}

// spike sets a single-bin peak with small shoulders, the shape of a clean
// narrow tone over a quiet floor.
func spike(s []float64, bin int, mag float64) []float64 {
	s[bin] = mag
	if bin > 0 {
		s[bin-1] = mag / 2
	}
	if bin < len(s)-1 {
		s[bin+1] = mag / 2
	}
	return s
}

func TestAnalyzeAcquiresPeakImmediately(t *testing.T) {
	tr := newTestTracker()

	res := tr.Analyze(spike(flatSnapshot(1024, 2), 200, 220))

	if !res.Locked {
		t.Fatal("tracker did not lock on a clean peak")
	}
	if math.Abs(res.FreqIndex-200) > float64(tr.cfg.Bandwidth) {
		t.Errorf("locked at bin %.1f, want within %d of 200", res.FreqIndex, tr.cfg.Bandwidth)
	}
	if res.Volume <= 0 {
		t.Errorf("volume = %v, want > 0", res.Volume)
	}
}

func TestAnalyzeRejectsFlatSpectrum(t *testing.T) {
	tests := []struct {
		name  string
		level float64
	}{
		{"silence", 0},
		{"below noise floor", 10},
		{"loud but broadband", 120},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTracker()

			// A flat spectrum has no sharp peak, whatever its level.
			for i := 0; i < 5; i++ {
				res := tr.Analyze(flatSnapshot(1024, tc.level))
				if res.Locked {
					t.Fatalf("locked on flat spectrum at level %v", tc.level)
				}
				if res.Volume != 0 {
					t.Fatalf("volume = %v on flat spectrum, want 0", res.Volume)
				}
			}
		})
	}
}

func TestAnalyzeRejectsBroadbandPlateau(t *testing.T) {
	tr := newTestTracker()

	// A wide block of energy (voice, wind) is loud but not sharp.
	s := flatSnapshot(1024, 5)
	for i := 300; i < 340; i++ {
		s[i] = 150
	}

	if res := tr.Analyze(s); res.Locked {
		t.Errorf("locked on broadband plateau: %+v", res)
	}
}

func TestSmoothingFollowsDrift(t *testing.T) {
	tr := newTestTracker()

	tr.Analyze(spike(flatSnapshot(1024, 2), 200, 220))
	res := tr.Analyze(spike(flatSnapshot(1024, 2), 210, 220))

	want := 200 + 10*tr.cfg.Smoothing
	if math.Abs(res.FreqIndex-want) > 1e-9 {
		t.Errorf("smoothed index = %v, want %v", res.FreqIndex, want)
	}
}

func TestLocalityPrefersNearbyPeak(t *testing.T) {
	tr := newTestTracker()

	tr.Analyze(spike(flatSnapshot(1024, 2), 200, 220))

	// A louder tone far outside the search window must not steal the
	// track while the nearby one is still present.
	s := spike(flatSnapshot(1024, 2), 210, 150)
	s = spike(s, 500, 250)
	res := tr.Analyze(s)

	if !res.Locked {
		t.Fatal("lost lock")
	}
	if res.FreqIndex > 250 {
		t.Errorf("jumped to far peak: bin %.1f", res.FreqIndex)
	}
}

func TestLossToleranceKeepsTarget(t *testing.T) {
	tr := newTestTracker()

	tr.Analyze(spike(flatSnapshot(1024, 2), 500, 220))

	// Dropouts up to the loss limit keep the tracked position.
	for i := 0; i < tr.cfg.LossLimit; i++ {
		res := tr.Analyze(flatSnapshot(1024, 2))
		if !res.Locked {
			t.Fatalf("lost lock after %d frames of dropout", i+1)
		}
		if math.Abs(res.FreqIndex-500) > 1 {
			t.Fatalf("tracked bin moved to %.1f during dropout", res.FreqIndex)
		}
	}
}

func TestSustainedLossResetsToDefaultAnchor(t *testing.T) {
	tr := newTestTracker()

	tr.Analyze(spike(flatSnapshot(1024, 2), 500, 220))

	for i := 0; i < tr.cfg.LossLimit+1; i++ {
		tr.Analyze(flatSnapshot(1024, 2))
	}

	res := tr.Analyze(flatSnapshot(1024, 2))
	if res.Locked || res.Volume != 0 {
		t.Fatalf("still reporting a target after sustained loss: %+v", res)
	}
	if math.Abs(tr.anchor-tr.defaultBin()) > 1e-9 {
		t.Errorf("anchor = %v after loss, want default %v", tr.anchor, tr.defaultBin())
	}

	// With two candidate tones, the search must resume from the
	// default anchor, not the last lost position.
	s := spike(flatSnapshot(1024, 2), 95, 150)
	s = spike(s, 500, 250)
	res = tr.Analyze(s)

	if !res.Locked {
		t.Fatal("did not reacquire")
	}
	if res.FreqIndex != 95 {
		t.Errorf("reacquired at bin %.1f, want 95 (near the default anchor)", res.FreqIndex)
	}
}

func TestGlobalSearchIgnoresRumble(t *testing.T) {
	tr := newTestTracker()

	// The only peak sits below the ~100 Hz cutoff.
	res := tr.Analyze(spike(flatSnapshot(1024, 2), 2, 250))

	if res.Locked {
		t.Errorf("locked on sub-cutoff rumble: %+v", res)
	}
}

func TestVolumeAveragesTrackedBand(t *testing.T) {
	tr := newTestTracker()

	s := flatSnapshot(1024, 0)
	for i := 200 - tr.cfg.Bandwidth; i <= 200+tr.cfg.Bandwidth; i++ {
		s[i] = 200
	}
	s[200] = 250
	res := tr.Analyze(s)

	if !res.Locked {
		t.Fatal("did not lock")
	}

	want := (6*200.0 + 250) / 7 // mean over the 2*Bandwidth+1 tracked bins
	if math.Abs(res.Volume-want) > 1e-9 {
		t.Errorf("volume = %v, want %v", res.Volume, want)
	}
}

func TestAnalyzeHandlesDegenerateSnapshots(t *testing.T) {
	// Tiny or missing snapshots get clamped, never panic.
	for _, s := range [][]float64{nil, {}, {255}, flatSnapshot(3, 255)} {
		tr := newTestTracker()
		tr.Analyze(s)
	}

	tr := newTestTracker()
	if res := tr.Analyze(nil); res.Locked {
		t.Errorf("locked on nil snapshot: %+v", res)
	}
	if res := tr.Analyze([]float64{}); res.Locked {
		t.Errorf("locked on empty snapshot: %+v", res)
	}
}

func TestAnalyzeHandlesEmptySnapshotWhileLocked(t *testing.T) {
	tr := newTestTracker()

	tr.Analyze(spike(flatSnapshot(1024, 2), 200, 220))
	res := tr.Analyze(nil)

	// A missing snapshot counts as a dropout, not a crash.
	if !res.Locked {
		t.Error("single missing snapshot dropped the lock")
	}
	if res.Volume != 0 {
		t.Errorf("volume = %v for empty snapshot, want 0", res.Volume)
	}
}
