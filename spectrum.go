package main

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Snapshot magnitudes follow the Web-Audio convention: the dB range below
// is mapped linearly onto 0-255, everything outside is clamped.
const (
	snapshotMinDb = -100.0
	snapshotMaxDb = -30.0
)

// SpectrumAnalyzer produces fixed-length frequency-magnitude snapshots
// from a stream of time-domain samples. It keeps a rolling window of the
// most recent FFTSize samples, so snapshots can be produced at a faster
// cadence than the window length.
type SpectrumAnalyzer struct {
	fftSize  int
	win      []float64
	winSum   float64
	ring     []float64
	windowed []float64
	snapshot []float64
}

func NewSpectrumAnalyzer(fftSize int) *SpectrumAnalyzer {
	win := window.Hamming(fftSize)
	sum := 0.0
	for _, w := range win {
		sum += w
	}

	return &SpectrumAnalyzer{
		fftSize:  fftSize,
		win:      win,
		winSum:   sum,
		ring:     make([]float64, fftSize),
		windowed: make([]float64, fftSize),
		snapshot: make([]float64, fftSize/2),
	}
}

// Bins returns the snapshot length (one magnitude per frequency bin).
func (a *SpectrumAnalyzer) Bins() int {
	return a.fftSize / 2
}

// Push appends one hop of samples and returns the snapshot over the
// trailing window. The returned slice is reused between calls; callers
// must not retain it across frames.
func (a *SpectrumAnalyzer) Push(samples []float64) []float64 {
	if len(samples) >= a.fftSize {
		copy(a.ring, samples[len(samples)-a.fftSize:])
	} else {
		copy(a.ring, a.ring[len(samples):])
		copy(a.ring[a.fftSize-len(samples):], samples)
	}

	for i, s := range a.ring {
		a.windowed[i] = s * a.win[i]
	}

	spectrum := fft.FFTReal(a.windowed)
	for i := range a.snapshot {
		mag := 2 * cmplx.Abs(spectrum[i]) / a.winSum
		db := 20 * math.Log10(mag+1e-12)
		v := 255 * (db - snapshotMinDb) / (snapshotMaxDb - snapshotMinDb)
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		a.snapshot[i] = v
	}

	return a.snapshot
}

const nBands = 16 // number of frequency bands for the spectrogram line

var levels = [8]rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// SpectrumBars folds the snapshot's [lo, hi] bin range into nBands unicode
// bars for the status line.
func SpectrumBars(snapshot []float64, lo, hi int) (result [nBands]rune) {
	for i := range result {
		result[i] = levels[0]
	}
	if len(snapshot) == 0 {
		return result
	}

	lo = clampInt(lo, 0, len(snapshot)-1)
	hi = clampInt(hi, 0, len(snapshot)-1)
	if hi <= lo {
		return result
	}

	binsPerBand := float64(hi-lo+1) / nBands

	for i := 0; i < nBands; i++ {
		start := lo + int(float64(i)*binsPerBand)
		end := lo + int(float64(i+1)*binsPerBand)
		if end > hi+1 {
			end = hi + 1
		}
		if start >= end {
			start = end - 1
		}

		sum := 0.0
		for j := start; j < end; j++ {
			sum += snapshot[j]
		}
		avg := sum / float64(end-start)

		level := int(avg * 8 / 256)
		if level > 7 {
			level = 7
		}
		result[i] = levels[level]
	}

	return result
}
