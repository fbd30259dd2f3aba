package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// DefaultSampleRate matches what speech recognizers expect.
const DefaultSampleRate = 16000

// maxRecordSeconds bounds the in-memory recording of a single attempt.
const maxRecordSeconds = 120

// ErrClosed is returned by Level after Close.
var ErrClosed = errors.New("audio capture closed")

// Config selects the capture device and format.
type Config struct {
	SampleRate int
	// Device is a case-insensitive substring of the device name; empty means default.
	Device string
	Window int
	Logger *slog.Logger
}

// Capture is a live microphone stream.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	buf    *buffer
	rate   int
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open acquires the microphone and starts capturing mono float32 samples.
func Open(cfg Config) (*Capture, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	c := &Capture{
		ctx:    ctx,
		buf:    newBuffer(cfg.Window, rate*maxRecordSeconds),
		rate:   rate,
		logger: logger,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(rate)
	deviceConfig.Alsa.NoMMap = 1
	if cfg.Device != "" {
		id, err := c.findDevice(cfg.Device)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	onRecv := func(_, input []byte, frameCount uint32) {
		n := int(frameCount)
		if len(input) < n*4 {
			return
		}
		c.buf.write(decodeF32(input[:n*4]))
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	c.device = device
	if err := device.Start(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}
	logger.Debug("microphone capture started", "sample_rate", rate, "device", cfg.Device)
	return c, nil
}

func (c *Capture) findDevice(name string) (*malgo.DeviceID, error) {
	devices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name()), want) {
			id := dev.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("capture device not found: %s", name)
}

// Level reports the dB level of the most recent analysis window.
func (c *Capture) Level() (float64, error) {
	if !c.Live() {
		return 0, ErrClosed
	}
	return Level(c.buf.snapshot()), nil
}

// PCM returns a copy of everything recorded since Open.
func (c *Capture) PCM() []float32 {
	return c.buf.pcm()
}

// SampleRate returns the capture rate in Hz.
func (c *Capture) SampleRate() int {
	return c.rate
}

// Live reports whether the device is still held.
func (c *Capture) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close releases the device and the audio context. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	device, ctx := c.device, c.ctx
	c.device, c.ctx = nil, nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	var err error
	if ctx != nil {
		err = ctx.Uninit()
		ctx.Free()
	}
	if err != nil {
		return fmt.Errorf("failed to release audio context: %w", err)
	}
	c.logger.Debug("microphone capture closed")
	return nil
}

func decodeF32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
