package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/transforms"
	"go.uber.org/zap"
)

// NewLogger builds a zap logger writing to the given file. The TUI owns
// the terminal, so nothing may log to stdout/stderr while it runs.
func NewLogger(path string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}

	return logger.Sugar(), nil
}

// Session is one capture-to-text run: a reader plus fresh tracker,
// decoder and analyzer state. Its components are only ever touched from
// the frame loop.
type Session struct {
	reader   *AudioReader
	analyzer *SpectrumAnalyzer
	tracker  *ToneTracker
	decoder  *MorseDecoder
}

// DecoderApp drives the per-frame pipeline: read one hop of audio,
// compute its frequency snapshot, track the tone, feed the volume to the
// Morse decoder. Display state is published under the mutex for the UI.
type DecoderApp struct {
	Log *zap.SugaredLogger

	TrackerConfig TrackerConfig
	DecoderConfig DecoderConfig

	Player   *AudioWriter
	AutoGain bool
	Wait     bool // on input errors/EOF, wait for a new source instead of exiting

	mu       sync.Mutex
	session  *Session
	lastText string // final text of the previous session

	// Display state, guarded by mu.
	bars    [nBands]rune
	toneHz  int
	volume  float64
	locked  bool
	elapsed time.Duration
	status  string

	Update func() // called after each processed frame, may be nil
}

// StartSession replaces the current audio source. Tracker and decoder
// state is created fresh per session and dies with it; decoded text does
// not survive a source switch.
func (app *DecoderApp) StartSession(r *AudioReader) {
	app.mu.Lock()
	prev := app.session
	app.session = nil

	if prev != nil {
		app.lastText = prev.decoder.Text()
		app.mu.Unlock()
		prev.reader.Close()
		time.Sleep(500 * time.Millisecond)
		app.mu.Lock()
	}

	if r != nil {
		cfg := app.TrackerConfig.withDefaults()
		cfg.SampleRate = r.SampleRate

		app.session = &Session{
			reader:   r,
			analyzer: NewSpectrumAnalyzer(cfg.FFTSize),
			tracker:  NewToneTracker(cfg),
			decoder:  NewMorseDecoder(app.DecoderConfig),
		}

		app.Log.Infow("session started",
			"source", r.Id,
			"sampleRate", r.SampleRate,
			"hop", r.HopSize,
		)
	}
	app.mu.Unlock()

	app.Status("")
}

func (app *DecoderApp) getSession() *Session {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.session
}

// Stop closes the current source; MainLoop drains and either waits for a
// new one or returns, depending on Wait.
func (app *DecoderApp) Stop() {
	app.StartSession(nil)
}

// Text returns the decoded text of the current session, including the
// live preview of the pending character.
func (app *DecoderApp) Text() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.session == nil {
		return app.lastText
	}
	return app.session.decoder.Text()
}

// AdjustThreshold moves the mark/space threshold by delta and applies it
// to the running session. Returns the new value.
func (app *DecoderApp) AdjustThreshold(delta float64) float64 {
	app.mu.Lock()
	defer app.mu.Unlock()

	v := app.DecoderConfig.Threshold + delta
	if v < 5 {
		v = 5
	} else if v > 250 {
		v = 250
	}
	app.DecoderConfig.Threshold = v
	if app.session != nil {
		app.session.decoder.cfg.Threshold = v
	}
	return v
}

// AdjustSmoothing moves the tracker smoothing factor by delta and applies
// it to the running session. Returns the new value.
func (app *DecoderApp) AdjustSmoothing(delta float64) float64 {
	app.mu.Lock()
	defer app.mu.Unlock()

	v := app.TrackerConfig.Smoothing + delta
	if v < 0.05 {
		v = 0.05
	} else if v > 1 {
		v = 1
	}
	app.TrackerConfig.Smoothing = v
	if app.session != nil {
		app.session.tracker.cfg.Smoothing = v
	}
	return v
}

// ClearText drops the session's decoded text.
func (app *DecoderApp) ClearText() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.session != nil {
		app.session.decoder.Clear()
	}
}

// SaveText writes the finalized decoded text (no preview) to a file.
func (app *DecoderApp) SaveText(path string) error {
	app.mu.Lock()
	text := app.lastText
	if app.session != nil {
		text = app.session.decoder.Decoded()
	}
	app.mu.Unlock()

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("save text: %w", err)
	}

	app.Log.Infow("text saved", "path", path, "chars", len(text))
	return nil
}

// Display returns a copy of the per-frame display state.
func (app *DecoderApp) Display() (bars [nBands]rune, toneHz int, volume float64, locked bool, elapsed time.Duration) {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.bars, app.toneHz, app.volume, app.locked, app.elapsed
}

func (app *DecoderApp) Status(s string) {
	app.mu.Lock()
	app.status = s
	app.mu.Unlock()

	if s != "" {
		app.Log.Info(s)
	}
}

func (app *DecoderApp) GetStatus() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.status
}

// MainLoop processes frames until the source ends (Wait == false) or
// forever, picking up whatever source StartSession installs. Each frame
// is fully processed before the next: tracker and decoder are strictly
// frame-sequential.
func (app *DecoderApp) MainLoop() {
	var frames int

	for {
		session := app.getSession()
		if session == nil {
			if !app.Wait {
				return
			}
			app.Status("Select audio input")
			time.Sleep(300 * time.Millisecond)
			continue
		}

		buf, n, err := session.reader.Read()
		if err != nil {
			app.Log.Errorw("read failed", "source", session.reader.Id, "error", err)
			app.Status("Error: " + err.Error())
			app.Stop()
			if !app.Wait {
				return
			}
			continue
		}

		if n == 0 {
			app.Status("No more data")
			app.flushIdle(session)
			app.Stop()
			if !app.Wait {
				return
			}
			continue
		}

		if buf.Format.NumChannels > 1 {
			transforms.MonoDownmix(buf)
		}
		if app.AutoGain {
			transforms.NormalizeMax(buf)
		}

		if app.Player != nil {
			app.Player.Write(buf)
		}

		snapshot := session.analyzer.Push(buf.Data)
		res := session.tracker.Analyze(snapshot)
		session.decoder.Process(res.Volume)

		frames++

		app.mu.Lock()
		app.bars = SpectrumBars(snapshot, session.tracker.cutoffBin(), len(snapshot)/4)
		app.locked = res.Locked
		app.volume = res.Volume
		if res.Locked {
			app.toneHz = int(session.tracker.BinToHz(res.FreqIndex))
		} else {
			app.toneHz = 0
		}
		app.elapsed = time.Duration(float64(frames) / app.DecoderConfig.FrameRate * float64(time.Second))
		app.mu.Unlock()

		if app.Update != nil {
			app.Update()
		}
	}
}

// flushIdle finalizes the last word when a WAV file runs out, without
// waiting for the wall-clock watchdog.
func (app *DecoderApp) flushIdle(session *Session) {
	session.decoder.Process(0)
	session.decoder.Flush()
}
