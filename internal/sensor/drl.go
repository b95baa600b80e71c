package sensor

import "log"

// DRLState is the daytime-running-light decision.
type DRLState int

const (
	DRLOff DRLState = iota
	DRLOn
)

func (s DRLState) String() string {
	if s == DRLOn {
		return "on"
	}
	return "off"
}

// DRLConfig holds the hysteresis thresholds and debounce length. The gap
// between LowThreshold and HighThreshold prevents chatter at the boundary.
// Thresholds are in the units of the active light decode mode.
type DRLConfig struct {
	LowThreshold   uint16 `yaml:"low_threshold" json:"lowThreshold"`
	HighThreshold  uint16 `yaml:"high_threshold" json:"highThreshold"`
	DebounceCycles int    `yaml:"debounce_cycles" json:"debounceCycles"`
}

// DRL is the two-state light controller. It starts Off and runs for the
// process lifetime; every transition requires DebounceCycles consecutive
// qualifying readings, so a single transient spike never toggles it.
type DRL struct {
	cfg   DRLConfig
	state DRLState
	run   int
}

// NewDRL builds a controller in the Off state.
func NewDRL(cfg DRLConfig) *DRL {
	if cfg.DebounceCycles <= 0 {
		cfg.DebounceCycles = 3
	}
	return &DRL{cfg: cfg}
}

// State returns the current decision.
func (d *DRL) State() DRLState { return d.state }

// Update feeds one cycle's forward-light value and returns the resulting
// state.
func (d *DRL) Update(light uint16) DRLState {
	var qualifies bool
	switch d.state {
	case DRLOff:
		qualifies = light < d.cfg.LowThreshold
	case DRLOn:
		qualifies = light > d.cfg.HighThreshold
	}
	if !qualifies {
		d.run = 0
		return d.state
	}
	d.run++
	if d.run < d.cfg.DebounceCycles {
		return d.state
	}
	d.run = 0
	if d.state == DRLOff {
		d.state = DRLOn
	} else {
		d.state = DRLOff
	}
	log.Printf("[drl] state -> %s (light=%d)", d.state, light)
	return d.state
}
