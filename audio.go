package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

type AudioType int

const (
	AudioInOut AudioType = iota
	AudioIn
	AudioOut
)

// ListAudioDevices returns the names of the available portaudio devices,
// filtered by direction.
func ListAudioDevices(t AudioType) ([]string, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var list []string

	for _, d := range devices {
		v := d.Name

		switch t {
		case AudioInOut:
			if d.MaxInputChannels > 0 {
				v += fmt.Sprintf(" (in:%v)", d.MaxInputChannels)
			}
			if d.MaxOutputChannels > 0 {
				v += fmt.Sprintf(" (out:%v)", d.MaxOutputChannels)
			}

		case AudioIn:
			if d.MaxInputChannels == 0 {
				continue
			}

		case AudioOut:
			if d.MaxOutputChannels == 0 {
				continue
			}
		}

		list = append(list, v)
	}

	return list, nil
}

// findDevice resolves a device by 1-based index or name prefix.
func findDevice(dev string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	if i, err := strconv.Atoi(dev); err == nil && i > 0 && i <= len(devices) {
		return devices[i-1], nil
	}

	for _, d := range devices {
		if strings.HasPrefix(d.Name, dev) {
			return d, nil
		}
	}

	return nil, fmt.Errorf("device not found: %s", dev)
}

// AudioReader delivers mono sample buffers of one analysis hop each, from
// either a portaudio input stream or a WAV file.
type AudioReader struct {
	Id string // device name or filename

	Stream       *portaudio.Stream
	StreamBuffer audio.Float32Buffer

	WavDecoder *wav.Decoder
	WavBuffer  audio.IntBuffer
	wavScale   float64

	SampleRate int
	Channels   int
	HopSize    int // samples per Read, one snapshot frame's worth

	reading bool
}

// FromAudioStream opens a portaudio input stream on the named device,
// delivering hops at the given frame rate.
func FromAudioStream(dev string, sampleRate int, frameRate float64) (*AudioReader, error) {
	info, err := findDevice(dev)
	if err != nil {
		return nil, err
	}

	const numChannels = 1
	hop := hopSize(sampleRate, frameRate)

	p := portaudio.HighLatencyParameters(info, nil)
	p.Input.Channels = numChannels
	p.Output.Channels = 0
	p.SampleRate = float64(sampleRate)
	p.FramesPerBuffer = hop

	buf32 := audio.Float32Buffer{
		Format: &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:   make([]float32, hop),
	}

	stream, err := portaudio.OpenStream(p, buf32.Data)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input: %w", err)
	}

	return &AudioReader{
		Id:           info.Name,
		Stream:       stream,
		StreamBuffer: buf32,
		SampleRate:   sampleRate,
		Channels:     numChannels,
		HopSize:      hop,
	}, nil
}

// FromWaveFile reads a WAV file, delivering hops sized for the file's own
// sample rate at the given frame rate.
func FromWaveFile(r io.ReadSeeker, frameRate float64) (*AudioReader, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	format := decoder.Format()
	hop := hopSize(format.SampleRate, frameRate) * format.NumChannels

	scale := 1.0
	if decoder.BitDepth > 0 {
		scale = float64(int(1) << uint(decoder.BitDepth-1))
	}

	return &AudioReader{
		WavDecoder: decoder,
		WavBuffer:  audio.IntBuffer{Format: format, Data: make([]int, hop)},
		wavScale:   scale,
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		HopSize:    hop,
	}, nil
}

func hopSize(sampleRate int, frameRate float64) int {
	if frameRate <= 0 {
		frameRate = 60
	}
	hop := int(float64(sampleRate) / frameRate)
	if hop < 1 {
		hop = 1
	}
	return hop
}

func (r *AudioReader) Close() {
	for r.reading {
		time.Sleep(100 * time.Millisecond)
	}

	if r.Stream != nil {
		r.Stream.Stop()
		r.Stream = nil
	}
	if r.WavDecoder != nil {
		// nothing to close
		r.WavDecoder = nil
	}
}

// Read returns the next hop of samples. n == 0 with a nil error means end
// of input (WAV files only; a live stream blocks).
func (r *AudioReader) Read() (*audio.FloatBuffer, int, error) {
	r.reading = true
	defer func() {
		r.reading = false
	}()

	if r.Stream != nil {
		if err := r.Stream.Read(); err != nil {
			return nil, 0, err
		}

		return r.StreamBuffer.AsFloatBuffer(), len(r.StreamBuffer.Data), nil
	}

	if r.WavDecoder != nil {
		r.WavBuffer.Data = r.WavBuffer.Data[:cap(r.WavBuffer.Data)]

		n, err := r.WavDecoder.PCMBuffer(&r.WavBuffer)
		if n == 0 {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}

		// PCMBuffer may return a short tail at end of file.
		r.WavBuffer.Data = r.WavBuffer.Data[:n]

		fb := r.WavBuffer.AsFloatBuffer()
		for i, s := range fb.Data {
			fb.Data[i] = s / r.wavScale
		}

		return fb, n, nil
	}

	return nil, 0, fmt.Errorf("no audio source available")
}

// AudioWriter plays the monitored audio back on an output device.
type AudioWriter struct {
	Stream       *portaudio.Stream
	StreamBuffer audio.Float32Buffer
	Volume       float32
	mute         bool
}

func NewAudioWriter(dev string, sampleRate, hop int) (*AudioWriter, error) {
	info, err := findDevice(dev)
	if err != nil {
		return nil, err
	}

	const numChannels = 1

	p := portaudio.HighLatencyParameters(nil, info)
	p.Input.Channels = 0
	p.Output.Channels = numChannels
	p.SampleRate = float64(sampleRate)
	p.FramesPerBuffer = hop

	buf32 := audio.Float32Buffer{
		Format: &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:   make([]float32, hop),
	}

	stream, err := portaudio.OpenStream(p, buf32.Data)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start output: %w", err)
	}

	return &AudioWriter{
		Stream:       stream,
		StreamBuffer: buf32,
		Volume:       1.0,
	}, nil
}

func (w *AudioWriter) Close() {
	if w.Stream != nil {
		w.Stream.Stop()
	}
}

func (w *AudioWriter) Mute(m bool) {
	if w.mute = m; w.mute {
		for i := range w.StreamBuffer.Data {
			w.StreamBuffer.Data[i] = 0
		}
	}
}

func (w *AudioWriter) Write(b *audio.FloatBuffer) error {
	if w.mute {
		return nil
	}

	buf32 := b.AsFloat32Buffer()

	if w.Volume != 1.0 {
		for i := 0; i < len(buf32.Data); i++ {
			buf32.Data[i] *= w.Volume
		}
	}

	copy(w.StreamBuffer.Data, buf32.Data)
	return w.Stream.Write()
}
