package bcm

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/openrls/linbcm/internal/lin"
	"github.com/openrls/linbcm/internal/sensor"
)

// Slot is one entry of the cyclic polling table: a slave-response frame
// and how often it is due, in cycles.
type Slot struct {
	FrameID      byte
	PeriodCycles uint64
	lastPolled   uint64
}

// DefaultSlots is the reference schedule: light and rain every cycle, the
// environmental frame every fifth.
func DefaultSlots(lowRateDivisor uint64) []Slot {
	if lowRateDivisor == 0 {
		lowRateDivisor = 5
	}
	return []Slot{
		{FrameID: lin.FrameLight, PeriodCycles: 1},
		{FrameID: lin.FrameRain, PeriodCycles: 1},
		{FrameID: lin.FrameEnv, PeriodCycles: lowRateDivisor},
	}
}

// EngineConfig tunes the schedule engine.
type EngineConfig struct {
	// CyclePeriod is the full schedule cadence.
	CyclePeriod time.Duration
	// ResponseTimeout bounds each slave-frame poll; a missed response
	// must return well before the next cycle is due.
	ResponseTimeout time.Duration
	// LowRateDivisor is the environmental frame period in cycles.
	LowRateDivisor uint64
	LightMode      sensor.LightMode
	Command        Command
	DRL            sensor.DRLConfig
}

// Stats counts what the bus has been doing since startup.
type Stats struct {
	Cycles        uint64            `json:"cycles"`
	Misses        map[string]uint64 `json:"misses"` // per frame, hex keyed
	DroppedFrames uint64            `json:"droppedFrames"`
}

// Snapshot is what one cycle produces: the retained readings, the DRL
// decision and the bus counters. Value data, superseded next cycle.
type Snapshot struct {
	Reading sensor.Reading `json:"reading"`
	DRL     string         `json:"drl"`
	Stats   Stats          `json:"stats"`
}

// Engine drives the LIN master on the fixed cyclic schedule. It is the
// single-threaded owner of the bus: one control loop advances cycle by
// cycle, and diagnostic work runs only in the cooperative window between
// cycles via Exclusive.
type Engine struct {
	master *lin.Master
	cfg    EngineConfig

	slots   []Slot
	drl     *sensor.DRL
	tracker sensor.CounterTracker

	mu      sync.RWMutex
	reading sensor.Reading
	cycles  uint64
	misses  map[byte]uint64

	exclusive chan func()
	onCycle   func(Snapshot)
}

// NewEngine initializes engine state: cycle count zero, DRL off, empty
// readings.
func NewEngine(master *lin.Master, cfg EngineConfig) *Engine {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = 60 * time.Millisecond
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 15 * time.Millisecond
	}
	return &Engine{
		master:    master,
		cfg:       cfg,
		slots:     DefaultSlots(cfg.LowRateDivisor),
		drl:       sensor.NewDRL(cfg.DRL),
		misses:    make(map[byte]uint64),
		exclusive: make(chan func()),
	}
}

// OnCycle registers a callback invoked with each cycle's snapshot. Must be
// set before Run.
func (e *Engine) OnCycle(fn func(Snapshot)) { e.onCycle = fn }

// Run executes the schedule until the context is cancelled. Exclusive
// requests are honored only at cycle boundaries, never mid-frame.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[bcm] schedule running: cycle=%v cmd=% X", e.cfg.CyclePeriod, e.cfg.Command.Payload())
	ticker := time.NewTicker(e.cfg.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[bcm] stopped after %d cycles", e.Cycles())
			return nil
		case fn := <-e.exclusive:
			fn()
		case <-ticker.C:
			e.cycle()
		}
	}
}

// Exclusive runs fn between schedule cycles with sole use of the bus, and
// blocks until it has finished. Diagnostic transactions go through here so
// they never contend with a scheduled poll in flight.
func (e *Engine) Exclusive(fn func()) {
	done := make(chan struct{})
	e.exclusive <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// cycle runs one schedule iteration: command out, due slots polled, frames
// decoded and fed forward. Transport faults are absorbed locally so the
// cadence holds; the next cycle is the only retry.
func (e *Engine) cycle() {
	if err := e.master.Publish(lin.FrameCommand, e.cfg.Command.Payload(), lin.EnhancedChecksum); err != nil {
		log.Printf("[bcm] command frame: %v", err)
	}

	e.mu.Lock()
	cycle := e.cycles
	e.cycles++
	e.mu.Unlock()

	for i := range e.slots {
		slot := &e.slots[i]
		if cycle%slot.PeriodCycles != 0 {
			continue
		}
		slot.lastPolled = cycle

		payload, err := e.master.Subscribe(slot.FrameID, e.cfg.ResponseTimeout, lin.EnhancedChecksum)
		if err != nil {
			// Stale-but-valid: the prior reading stands.
			e.mu.Lock()
			e.misses[slot.FrameID]++
			e.mu.Unlock()
			continue
		}
		frame, err := sensor.Decode(slot.FrameID, payload, e.cfg.LightMode)
		if err != nil {
			log.Printf("[bcm] frame 0x%02X: %v", slot.FrameID, err)
			e.mu.Lock()
			e.misses[slot.FrameID]++
			e.mu.Unlock()
			continue
		}
		e.apply(frame)
	}

	if e.onCycle != nil {
		e.onCycle(e.Snapshot())
	}
}

// apply folds a decoded frame into the retained reading and feeds the
// consumers that hang off each frame type.
func (e *Engine) apply(frame sensor.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch f := frame.(type) {
	case sensor.LightReading:
		e.tracker.Observe(f.Counter)
		e.drl.Update(f.Intensity)
		e.reading.Light = &f
	case sensor.EnvReading:
		e.reading.Env = &f
	case sensor.RainReading:
		e.reading.Rain = &f
	}
}

// Cycles returns the cycle counter.
func (e *Engine) Cycles() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycles
}

// DRLState returns the current light decision.
func (e *Engine) DRLState() sensor.DRLState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.drl.State()
}

// Snapshot copies the current engine state for broadcast.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	misses := make(map[string]uint64, len(e.misses))
	for fid, n := range e.misses {
		misses[fidKey(fid)] = n
	}
	return Snapshot{
		Reading: e.reading,
		DRL:     e.drl.State().String(),
		Stats: Stats{
			Cycles:        e.cycles,
			Misses:        misses,
			DroppedFrames: e.tracker.Dropped,
		},
	}
}

func fidKey(fid byte) string {
	const hex = "0123456789ABCDEF"
	return "0x" + string([]byte{hex[fid>>4], hex[fid&0x0F]})
}
