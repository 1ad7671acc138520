package lightsensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrockway/binary-watchface/control/face"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestOpen(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: Addr, W: []byte{0xB2}, R: []byte{0x50, 0x00}},       // device id
			{Addr: Addr, W: []byte{0xA0, 0x93}},                        // enable
			{Addr: Addr, W: []byte{0xA1}, R: []byte{0b00000101, 0x00}}, // read control
			{Addr: Addr, W: []byte{0xA1, 0b00100101}},                  // high gain
			{Addr: Addr, W: []byte{0xA1}, R: []byte{0b00100101, 0x00}}, // read control
			{Addr: Addr, W: []byte{0xA1, 0b00100001}},                  // 200ms
			{Addr: Addr, W: []byte{0xB4}, R: []byte{0x34, 0x12}},       // chan0
			{Addr: Addr, W: []byte{0xB6}, R: []byte{0x02, 0x00}},       // chan1
		},
	}
	s, err := Open(bus, HighGain, IntegrationTime200ms)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got, want := s.IntegrationTime(), 200*time.Millisecond; got != want {
		t.Errorf("integration time:\n  got: %v\n want: %v", got, want)
	}
	combined, ir, err := s.Luminosity()
	if err != nil {
		t.Fatalf("luminosity: %v", err)
	}
	if got, want := combined, uint16(0x1234); got != want {
		t.Errorf("combined:\n  got: %#x\n want: %#x", got, want)
	}
	if got, want := ir, uint16(2); got != want {
		t.Errorf("ir:\n  got: %v\n want: %v", got, want)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("unconsumed i2c operations: %v", err)
	}
}

func TestOpenWrongDevice(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: Addr, W: []byte{0xB2}, R: []byte{0x42, 0x00}},
		},
	}
	if _, err := Open(bus, LowGain, IntegrationTime100ms); err == nil {
		t.Error("expected error for wrong device id")
	}
}

func TestHysteresis(t *testing.T) {
	h := &Hysteresis{Dark: 10, Bright: 100, Samples: 3}
	testData := []struct {
		reading uint16
		mode    face.Mode
		changed bool
	}{
		{500, face.Active, false},
		{5, face.Active, false},
		{5, face.Active, false},
		{50, face.Active, false}, // in between resets the run
		{5, face.Active, false},
		{5, face.Active, false},
		{5, face.Ambient, true},
		{5, face.Ambient, false},
		{50, face.Ambient, false}, // not bright enough to wake
		{101, face.Active, true},
		{101, face.Active, false},
	}
	for i, test := range testData {
		mode, changed := h.Observe(test.reading)
		if mode != test.mode || changed != test.changed {
			t.Errorf("reading %d (%v):\n  got: %v, %v\n want: %v, %v", i, test.reading, mode, changed, test.mode, test.changed)
		}
	}
}

func TestHysteresisSync(t *testing.T) {
	h := &Hysteresis{Dark: 10, Bright: 100, Samples: 2}
	h.Sync(face.Ambient)
	if mode, changed := h.Observe(500); mode != face.Active || !changed {
		t.Errorf("bright reading after starting ambient:\n  got: %v, %v\n want: %v, %v", mode, changed, face.Active, true)
	}

	h.Observe(5)
	h.Sync(face.Ambient)
	h.Sync(face.Active)
	if mode, changed := h.Observe(5); mode != face.Active || changed {
		t.Errorf("dark run should restart after a sync:\n  got: %v, %v\n want: %v, %v", mode, changed, face.Active, false)
	}
	if mode, changed := h.Observe(5); mode != face.Ambient || !changed {
		t.Errorf("second dark reading:\n  got: %v, %v\n want: %v, %v", mode, changed, face.Ambient, true)
	}
}

type fakeSensor struct {
	sync.Mutex
	combined uint16
}

func (s *fakeSensor) Luminosity() (uint16, uint16, error) {
	s.Lock()
	defer s.Unlock()
	return s.combined, 0, nil
}

func TestWatch(t *testing.T) {
	s := &fakeSensor{combined: 0}
	h := &Hysteresis{Dark: 10, Bright: 100, Samples: 2}
	modes := make(chan face.Mode)
	ctx, c := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- Watch(ctx, s, h, time.Millisecond, nil, func(ctx context.Context, m face.Mode) error {
			select {
			case modes <- m:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	select {
	case m := <-modes:
		if m != face.Ambient {
			t.Errorf("first mode change:\n  got: %v\n want: %v", m, face.Ambient)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ambient")
	}

	s.Lock()
	s.combined = 1000
	s.Unlock()
	select {
	case m := <-modes:
		if m != face.Active {
			t.Errorf("second mode change:\n  got: %v\n want: %v", m, face.Active)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for active")
	}

	c()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error after cancel: %v", err)
	}
}

func TestWatchFollowsCurrentMode(t *testing.T) {
	s := &fakeSensor{combined: 1000}
	h := &Hysteresis{Dark: 10, Bright: 100, Samples: 2}
	modes := make(chan face.Mode)
	ctx, c := context.WithCancel(context.Background())
	defer c()
	go Watch(ctx, s, h, time.Millisecond, func() face.Mode { return face.Ambient }, func(ctx context.Context, m face.Mode) error {
		select {
		case modes <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	select {
	case m := <-modes:
		if m != face.Active {
			t.Errorf("mode change:\n  got: %v\n want: %v", m, face.Active)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a switch to active in a lit room")
	}
}
