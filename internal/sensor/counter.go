package sensor

// counterStep is how far the 4-bit alive counter advances per transmitted
// light frame.
const counterStep = 5

// counterStepInv is the multiplicative inverse of counterStep mod 16,
// used to turn a counter delta back into a frame count.
const counterStepInv = 13

// CounterTracker supervises the light frame's rolling alive counter. An
// in-sequence frame advances the counter by exactly +5 mod 16; any other
// delta means frames were dropped or duplicated upstream and feeds the
// dropped metric instead of aborting the cycle.
type CounterTracker struct {
	last    byte
	primed  bool
	Dropped uint64
}

// Observe records a received counter value and returns how many frames
// were missed since the previous one (0 when in sequence).
func (t *CounterTracker) Observe(counter byte) uint64 {
	counter &= 0x0F
	if !t.primed {
		t.last = counter
		t.primed = true
		return 0
	}
	delta := (counter - t.last) & 0x0F
	t.last = counter

	// steps = number of +5 increments that produce this delta mod 16.
	steps := uint64(delta*counterStepInv) & 0x0F
	if steps == 1 {
		return 0
	}
	missed := uint64(1)
	if steps > 1 {
		missed = steps - 1
	}
	t.Dropped += missed
	return missed
}

// Reset clears the tracker, e.g. after the bus has been quiet.
func (t *CounterTracker) Reset() {
	t.primed = false
}
