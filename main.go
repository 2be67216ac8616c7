package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gordonklaus/portaudio"
	component "github.com/j-04/gocui-component"
	"github.com/jroimartin/gocui"
)

type App struct {
	DecoderApp

	gui   *gocui.Gui
	vinfo *gocui.View
	vmain *gocui.View
	vcmd  *gocui.View

	savePath string
}

func (app *App) Layout(g *gocui.Gui) (err error) {
	maxX, maxY := g.Size()

	app.vinfo, err = g.SetView("info", 0, 0, maxX-1, 2)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}

		app.vinfo.Title = "Whistle CW"
	}

	app.vmain, err = g.SetView("main", 0, 3, maxX-1, maxY-5)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}

		app.vmain.Title = "Decoded"
		app.vmain.Wrap = true
	}

	app.vcmd, err = g.SetView("cmdline", 0, maxY-4, maxX-1, maxY-1)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}

		app.vcmd.Title = "Available commands"
		fmt.Fprintf(app.vcmd, "^C/^Q: quit  t: -threshold  s: -smoothing  g: toggle auto gain  c: clear")
		if app.Player != nil {
			fmt.Fprintf(app.vcmd, "  v: -volume  m: toggle mute")
		}
		fmt.Fprintf(app.vcmd, "\ne: export     T: +threshold  S: +smoothing  x: stop input")
		if app.Player != nil {
			fmt.Fprintf(app.vcmd, "  V: +volume")
		}
	}

	bars, toneHz, volume, locked, elapsed := app.Display()

	lock := " "
	if locked {
		lock = "*"
	}

	app.vinfo.Clear()
	app.vinfo.SetOrigin(0, 0)

	fmt.Fprintf(app.vinfo,
		"[%v] Tone:%s%4dhz  Vol:%3d/Thr:%3d  dit:%3dms  dah/ch/wd:%2d/%2d/%2d frames  gain:%v  %8v  %s",
		string(bars[:]),
		lock,
		toneHz,
		int(volume),
		int(app.DecoderConfig.Threshold),
		int(app.DecoderConfig.DitTime*1000),
		int(2*app.DecoderConfig.DitTime*app.DecoderConfig.FrameRate),
		int(2*app.DecoderConfig.DitTime*app.DecoderConfig.FrameRate),
		int(5*app.DecoderConfig.DitTime*app.DecoderConfig.FrameRate),
		app.AutoGain,
		elapsed.Truncate(time.Second),
		app.GetStatus(),
	)

	app.vmain.Clear()
	app.vmain.SetOrigin(0, 0)
	fmt.Fprint(app.vmain, app.Text())

	return nil
}

func (app *App) SetKeyBinding() error {
	quit := func(g *gocui.Gui, v *gocui.View) error {
		return gocui.ErrQuit
	}

	if err := app.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}
	if err := app.gui.SetKeybinding("", gocui.KeyCtrlQ, gocui.ModNone, quit); err != nil {
		return err
	}

	clearText := func(g *gocui.Gui, v *gocui.View) error {
		app.ClearText()
		return nil
	}

	if err := app.gui.SetKeybinding("", 'c', gocui.ModNone, clearText); err != nil {
		return err
	}

	//
	// mark/space threshold up/down: T / t
	//

	thresholdUp := func(g *gocui.Gui, v *gocui.View) error {
		app.AdjustThreshold(5)
		return nil
	}

	thresholdDown := func(g *gocui.Gui, v *gocui.View) error {
		app.AdjustThreshold(-5)
		return nil
	}

	if err := app.gui.SetKeybinding("", 'T', gocui.ModNone, thresholdUp); err != nil {
		return err
	}

	if err := app.gui.SetKeybinding("", 't', gocui.ModNone, thresholdDown); err != nil {
		return err
	}

	//
	// tracker smoothing up/down: S / s
	//

	smoothingUp := func(g *gocui.Gui, v *gocui.View) error {
		app.AdjustSmoothing(0.05)
		return nil
	}

	smoothingDown := func(g *gocui.Gui, v *gocui.View) error {
		app.AdjustSmoothing(-0.05)
		return nil
	}

	if err := app.gui.SetKeybinding("", 'S', gocui.ModNone, smoothingUp); err != nil {
		return err
	}

	if err := app.gui.SetKeybinding("", 's', gocui.ModNone, smoothingDown); err != nil {
		return err
	}

	toggleGain := func(g *gocui.Gui, v *gocui.View) error {
		app.AutoGain = !app.AutoGain
		return nil
	}

	if err := app.gui.SetKeybinding("", 'g', gocui.ModNone, toggleGain); err != nil {
		return err
	}

	stopInput := func(g *gocui.Gui, v *gocui.View) error {
		app.Stop()
		return nil
	}

	if err := app.gui.SetKeybinding("", 'x', gocui.ModNone, stopInput); err != nil {
		return err
	}

	export := func(g *gocui.Gui, v *gocui.View) error {
		if err := app.SaveText(app.savePath); err != nil {
			app.Status("Error: " + err.Error())
		} else {
			app.Status("Saved to " + app.savePath)
		}
		return nil
	}

	if err := app.gui.SetKeybinding("", 'e', gocui.ModNone, export); err != nil {
		return err
	}

	if app.Player != nil {
		toggleMute := func(g *gocui.Gui, v *gocui.View) error {
			app.Player.Mute(!app.Player.mute)
			return nil
		}

		if err := app.gui.SetKeybinding("", 'm', gocui.ModNone, toggleMute); err != nil {
			return err
		}

		volumeUp := func(g *gocui.Gui, v *gocui.View) error {
			if app.Player.Volume < 2.0 {
				app.Player.Volume += 0.1
			}

			return nil
		}

		volumeDown := func(g *gocui.Gui, v *gocui.View) error {
			if app.Player.Volume > 0.0 {
				app.Player.Volume -= 0.1
			}

			return nil
		}

		if err := app.gui.SetKeybinding("", 'V', gocui.ModNone, volumeUp); err != nil {
			return err
		}

		if err := app.gui.SetKeybinding("", 'v', gocui.ModNone, volumeDown); err != nil {
			return err
		}
	}

	return nil
}

var (
	FormSelect = fmt.Errorf("form-selected")
	FormCancel = fmt.Errorf("form-cancel")
)

func guiSelectAudio(sampleRate int, frameRate float64) (reader *AudioReader) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln(err)
	}
	defer g.Close()

	list, err := ListAudioDevices(AudioIn)
	if err != nil {
		log.Fatal(err)
	}

	form := component.NewForm(g, "Select input device", 8, len(list), 0, 0)
	sel := form.AddSelect("Device:", 8, 40).AddOptions(list...)

	form.AddButton("Select", func(g *gocui.Gui, v *gocui.View) error {
		reader, err = FromAudioStream(sel.GetSelected(), sampleRate, frameRate)
		if err != nil {
			log.Fatal(err)
		}

		form.Close(g, v)
		return FormSelect
	})

	form.AddButton("Cancel", func(g *gocui.Gui, v *gocui.View) error {
		form.Close(g, v)
		return FormCancel
	})

	form.Draw()

	if err := g.MainLoop(); err != FormSelect && err != FormCancel {
		log.Panicln(err)
	}

	return
}

func main() {
	dev := flag.String("device", "", "input audio device (for live decoding)")
	out := flag.String("play", "", "output audio device (for monitoring)")
	list := flag.Bool("list", false, "list audio devices")
	rate := flag.Int("rate", 44100, "capture sample rate (in Hz)")
	fftSize := flag.Int("fftsize", 2048, "transform size (number of time-domain samples per snapshot)")
	frameRate := flag.Float64("framerate", 60, "analysis frames per second")
	bandwidth := flag.Int("bandwidth", 3, "volume averaging half-bandwidth (in bins)")
	noiseFloor := flag.Float64("noisefloor", 30, "minimum peak magnitude (0-255)")
	sharpness := flag.Float64("sharpness", 2.5, "required peak to surroundings ratio")
	smoothing := flag.Float64("smoothing", 0.15, "frequency smoothing factor per frame (0-1)")
	window := flag.Int("window", 20, "peak search half-window around the tracked bin (in bins)")
	lossLimit := flag.Int("losslimit", 30, "frames of signal loss before the tracker resets")
	threshold := flag.Float64("threshold", 40, "mark/space volume threshold (0-255)")
	ditTime := flag.Float64("dittime", 0.15, "base unit duration (in seconds)")
	idle := flag.Duration("idle", 5*time.Second, "idle time before the last word is forced out")
	autoGain := flag.Bool("autogain", false, "normalize each captured buffer to full scale")
	logPath := flag.String("log", "whistlecw.log", "log file")
	savePath := flag.String("save", "decoded.txt", "file the e(xport) command writes decoded text to")
	noui := flag.Bool("noui", false, "no user interface, write to stdout")

	flag.Parse()

	if *dev != "" || *out != "" || flag.NArg() == 0 {
		err := portaudio.Initialize()
		if err != nil {
			log.Fatalf("Failed to initialize PortAudio: %v", err)
		}
		defer portaudio.Terminate()
	}

	if *list || (*noui && *dev == "" && flag.NArg() == 0) {
		fmt.Println()
		fmt.Printf("Usage: %v [options] [filename.wav]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		fmt.Println()

		l, err := ListAudioDevices(AudioInOut)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println("Available audio devices")
		for i, d := range l {
			fmt.Println("", i+1, d)
		}

		din, _ := portaudio.DefaultInputDevice()
		dout, _ := portaudio.DefaultOutputDevice()

		fmt.Println()
		if din != nil {
			fmt.Println("Default input device:", din.Name)
		}
		if dout != nil {
			fmt.Println("Default output device:", dout.Name)
		}
		return
	}

	logger, err := NewLogger(*logPath)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var reader *AudioReader
	var player *AudioWriter

	if *dev != "" {
		reader, err = FromAudioStream(*dev, *rate, *frameRate)
		if err != nil {
			log.Fatal(err)
		}
	} else if flag.NArg() >= 1 {
		inputFile := flag.Arg(0)

		f, err := os.Open(inputFile)
		if err != nil {
			log.Fatal(err)
		}

		defer f.Close()

		reader, err = FromWaveFile(f, *frameRate)
		if err != nil {
			log.Fatal(err)
		}
		reader.Id = inputFile
	} else if *noui {
		log.Fatal("no input source specified")
	} else {
		reader = guiSelectAudio(*rate, *frameRate)
	}

	if reader == nil {
		log.Fatal("No audio selected")
	}

	if *out != "" {
		player, err = NewAudioWriter(*out, reader.SampleRate, reader.HopSize)
		if err != nil {
			log.Fatal(err)
		}
		defer player.Close()
	}

	app := App{
		savePath: *savePath,

		DecoderApp: DecoderApp{
			Log: logger,
			TrackerConfig: TrackerConfig{
				FFTSize:      *fftSize,
				Bandwidth:    *bandwidth,
				NoiseFloor:   *noiseFloor,
				Sharpness:    *sharpness,
				Smoothing:    *smoothing,
				SearchWindow: *window,
				LossLimit:    *lossLimit,
			},
			DecoderConfig: DecoderConfig{
				FrameRate:   *frameRate,
				Threshold:   *threshold,
				DitTime:     *ditTime,
				IdleTimeout: *idle,
			},
			Player:   player,
			AutoGain: *autoGain,
			Wait:     !*noui,
		},
	}

	app.StartSession(reader)

	if *noui {
		app.MainLoop()
		fmt.Println(app.Text())
		return
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln(err)
	}
	defer g.Close()

	app.gui = g
	app.Update = func() {
		g.Update(func(g *gocui.Gui) error { return nil })
	}

	g.SetManagerFunc(app.Layout)
	app.SetKeyBinding()

	go app.MainLoop()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Panicln(err)
	}
}
