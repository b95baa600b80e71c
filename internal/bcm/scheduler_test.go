package bcm

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/openrls/linbcm/internal/lin"
	"github.com/openrls/linbcm/internal/sensor"
)

// deadPort accepts everything and answers nothing.
type deadPort struct{}

func (deadPort) SendBreak() error                        { return nil }
func (deadPort) SendBytes([]byte) error                  { return nil }
func (deadPort) Recv(int, time.Duration) ([]byte, error) { return nil, nil }
func (deadPort) Flush() error                            { return nil }
func (deadPort) Close() error                            { return nil }

func testEngine(port lin.Port) *Engine {
	return NewEngine(lin.NewMaster(port), EngineConfig{
		CyclePeriod:     5 * time.Millisecond,
		ResponseTimeout: 10 * time.Millisecond,
		LowRateDivisor:  5,
		Command:         DefaultCommand(),
		DRL:             sensor.DRLConfig{LowThreshold: 40, HighThreshold: 120, DebounceCycles: 2},
	})
}

func TestEngine_CyclePublishesCommand(t *testing.T) {
	sim := lin.NewSimPort()
	e := testEngine(sim)

	e.cycle()

	want := DefaultCommand().Payload()
	if got := sim.LastCommand(); !bytes.Equal(got, want) {
		t.Fatalf("command on the bus % X, want % X", got, want)
	}
}

func TestEngine_CycleFillsReading(t *testing.T) {
	sim := lin.NewSimPort()
	sim.SetLight(42)
	e := testEngine(sim)

	e.cycle()

	snap := e.Snapshot()
	if snap.Reading.Light == nil {
		t.Fatal("no light reading after a full cycle")
	}
	if snap.Reading.Light.Intensity != 42 {
		t.Errorf("light intensity = %d, want 42", snap.Reading.Light.Intensity)
	}
	if snap.Reading.Env == nil {
		t.Error("no environmental reading on the divisor cycle")
	}
	if snap.Reading.Rain == nil {
		t.Error("no rain reading after a full cycle")
	}
	if snap.Reading.Rain.Active {
		t.Error("dormant rain pattern reported as active")
	}
	if snap.Stats.Cycles != 1 {
		t.Errorf("cycle counter = %d, want 1", snap.Stats.Cycles)
	}
}

func TestEngine_LowRateSlotSkipsCycles(t *testing.T) {
	e := testEngine(lin.NewSimPort())

	for i := 0; i < 6; i++ {
		e.cycle()
	}

	var env *Slot
	for i := range e.slots {
		if e.slots[i].FrameID == lin.FrameEnv {
			env = &e.slots[i]
		}
	}
	if env == nil {
		t.Fatal("schedule has no environmental slot")
	}
	// Due on cycles 0 and 5 only.
	if env.lastPolled != 5 {
		t.Fatalf("environmental slot last polled on cycle %d, want 5", env.lastPolled)
	}
}

func TestEngine_ReadingSurvivesQuietCycles(t *testing.T) {
	e := testEngine(lin.NewSimPort())

	// Cycle 0 fills the environmental reading; cycles 1..4 never poll it.
	for i := 0; i < 5; i++ {
		e.cycle()
	}
	if e.Snapshot().Reading.Env == nil {
		t.Fatal("environmental reading dropped between low-rate polls")
	}
}

func TestEngine_MissCountersOnSilentBus(t *testing.T) {
	e := testEngine(deadPort{})

	e.cycle()

	snap := e.Snapshot()
	for _, key := range []string{"0x23", "0x30", "0x29"} {
		if snap.Stats.Misses[key] != 1 {
			t.Errorf("misses[%s] = %d, want 1", key, snap.Stats.Misses[key])
		}
	}
	if snap.Reading.Light != nil || snap.Reading.Rain != nil {
		t.Error("readings materialized from a silent bus")
	}
}

func TestEngine_DRLFollowsLight(t *testing.T) {
	sim := lin.NewSimPort()
	sim.SetLight(5)
	e := testEngine(sim)

	e.cycle()
	if e.DRLState() == sensor.DRLOn {
		t.Fatal("DRL switched on after a single dark reading")
	}
	e.cycle()
	if e.DRLState() != sensor.DRLOn {
		t.Fatal("DRL still off after the debounce ran out")
	}

	sim.SetLight(250)
	e.cycle()
	e.cycle()
	if e.DRLState() != sensor.DRLOff {
		t.Fatal("DRL still on after sustained bright readings")
	}
}

func TestEngine_OnCycleCallback(t *testing.T) {
	e := testEngine(lin.NewSimPort())
	var got []Snapshot
	e.OnCycle(func(s Snapshot) { got = append(got, s) })

	e.cycle()
	e.cycle()

	if len(got) != 2 {
		t.Fatalf("callback ran %d times, want 2", len(got))
	}
	if got[1].Stats.Cycles != 2 {
		t.Errorf("second snapshot cycle count = %d, want 2", got[1].Stats.Cycles)
	}
}

func TestEngine_ExclusiveRunsBetweenCycles(t *testing.T) {
	e := testEngine(lin.NewSimPort())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	ran := make(chan struct{})
	e.Exclusive(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Exclusive never ran")
	}

	// The schedule keeps advancing after the exclusive window.
	before := e.Cycles()
	deadline := time.Now().Add(time.Second)
	for e.Cycles() == before {
		if time.Now().After(deadline) {
			t.Fatal("schedule stalled after the exclusive window")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
