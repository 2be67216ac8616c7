package main

import (
	"math"
	"strings"
	"time"
)

// Morse code mapping
var morseCode = map[string]string{
	// letters
	".-": "A", "-...": "B", "-.-.": "C", "-..": "D",
	".": "E", "..-.": "F", "--.": "G", "....": "H",
	"..": "I", ".---": "J", "-.-": "K", ".-..": "L",
	"--": "M", "-.": "N", "---": "O", ".--.": "P",
	"--.-": "Q", ".-.": "R", "...": "S", "-": "T",
	"..-": "U", "...-": "V", ".--": "W", "-..-": "X",
	"-.--": "Y", "--..": "Z",

	// digits
	".----": "1", "..---": "2",
	"...--": "3", "....-": "4", ".....": "5", "-....": "6",
	"--...": "7", "---..": "8", "----.": "9", "-----": "0",

	// punctuations
	".-..-.": "\"", "...-..-": "$", ".----.": "'", "-.--.-": "]",
	"--..--": ",", "-....-": "-", ".-.-.-": ".", ".-.-.-.": ".",
	"-..-.": "/", "---...": ":", "-.-.-.": ";", "..--..": "?",
	".--.-.": "@", "..--.-": "_", "-.-.--": "!", "---.": "!",

	// prosigns
	".-.-.": "<AR/+>", ".-...": "<AS>", "-...-.-": "<BK>", "...-.-": "<SK>", "-...-": "<BT/=>", "-.--.": "<KN/[>",
}

type frameState int

const (
	stateSpace frameState = iota
	stateMark
)

// DecoderConfig holds the tunables for MorseDecoder. Now is the clock used
// by the idle watchdog; tests inject a fake one.
type DecoderConfig struct {
	FrameRate   float64 // Process calls per second
	Threshold   float64 // volume above this is a Mark (0-255 scale)
	DitTime     float64 // base unit duration in seconds
	IdleTimeout time.Duration
	Now         func() time.Time
}

func (c DecoderConfig) withDefaults() DecoderConfig {
	if c.FrameRate <= 0 {
		c.FrameRate = 60
	}
	if c.Threshold <= 0 {
		c.Threshold = 40
	}
	if c.DitTime <= 0 {
		c.DitTime = 0.15
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// MorseDecoder turns a per-frame volume scalar into Morse symbols and
// decoded text. It classifies each frame as mark or space against a fixed
// threshold, measures run lengths in frames and cuts symbol and word
// boundaries from the standard timing ratios.
type MorseDecoder struct {
	cfg DecoderConfig

	// Boundaries in whole frames, since run lengths are frame counts.
	// Dah and char-space both come out as 2 x dit x rate but are
	// derived separately: they answer different questions and the
	// tunables could diverge.
	dahBoundary  int
	charBoundary int
	wordBoundary int

	state    frameState
	duration int // consecutive frames in state
	sequence []byte
	text     string
	lastMark time.Time
}

func NewMorseDecoder(cfg DecoderConfig) *MorseDecoder {
	cfg = cfg.withDefaults()
	return &MorseDecoder{
		cfg:          cfg,
		dahBoundary:  int(math.Round(2 * cfg.DitTime * cfg.FrameRate)),
		charBoundary: int(math.Round(2 * cfg.DitTime * cfg.FrameRate)),
		wordBoundary: int(math.Round(5 * cfg.DitTime * cfg.FrameRate)),
		lastMark:     cfg.Now(),
	}
}

// Process consumes one frame's volume. Frames must arrive in order, one
// call per frame.
func (d *MorseDecoder) Process(volume float64) {
	now := d.cfg.Now()

	// Idle watchdog: a session that goes silent for good still has to
	// finalize its last word. Repeated firings are harmless: the
	// sequence is already flushed and the word space already trailing.
	if now.Sub(d.lastMark) > d.cfg.IdleTimeout {
		d.finishRun(stateSpace, d.wordBoundary+1)
		d.state = stateSpace
		d.duration = 0
	}

	st := stateSpace
	if volume > d.cfg.Threshold {
		st = stateMark
		d.lastMark = now
	}

	if st == d.state {
		d.duration++
		return
	}

	d.finishRun(d.state, d.duration)
	d.state = st
	d.duration = 1
}

// finishRun classifies a completed run of frames.
func (d *MorseDecoder) finishRun(st frameState, frames int) {
	switch st {
	case stateMark:
		if frames <= 1 {
			// Single-frame blips are noise.
			return
		}
		if frames < d.dahBoundary {
			d.sequence = append(d.sequence, '.')
		} else {
			d.sequence = append(d.sequence, '-')
		}

	case stateSpace:
		switch {
		case frames > d.wordBoundary:
			d.decodeSequence()
			if d.text != "" && !strings.HasSuffix(d.text, " ") {
				d.text += " "
			}
		case frames > d.charBoundary:
			d.decodeSequence()
		}
		// Shorter spaces are gaps between symbols of one character.
	}
}

// decodeSequence maps the pending dit/dah sequence to a character and
// clears it. Unknown sequences come out as "?".
func (d *MorseDecoder) decodeSequence() {
	if len(d.sequence) == 0 {
		return
	}
	if val, ok := morseCode[string(d.sequence)]; ok {
		d.text += val
	} else {
		d.text += "?"
	}
	d.sequence = d.sequence[:0]
}

// Flush forces a word boundary: any in-progress mark run becomes a
// symbol, the pending sequence is decoded and a trailing word space is
// appended. Used when the input ends for good.
func (d *MorseDecoder) Flush() {
	if d.state == stateMark {
		d.finishRun(stateMark, d.duration)
	}
	d.finishRun(stateSpace, d.wordBoundary+1)
	d.state = stateSpace
	d.duration = 0
}

// Text returns the decoded text plus a raw preview of the character still
// being keyed, so a caller can show live progress.
func (d *MorseDecoder) Text() string {
	return d.text + string(d.sequence)
}

// Decoded returns only the finalized text, without the pending preview.
func (d *MorseDecoder) Decoded() string {
	return d.text
}

// Clear drops all decoded text and the pending sequence.
func (d *MorseDecoder) Clear() {
	d.text = ""
	d.sequence = d.sequence[:0]
}
