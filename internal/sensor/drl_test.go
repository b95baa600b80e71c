package sensor

import "testing"

func testDRL() *DRL {
	return NewDRL(DRLConfig{LowThreshold: 40, HighThreshold: 120, DebounceCycles: 3})
}

func TestDRL_OffToOnAfterDebounce(t *testing.T) {
	d := testDRL()
	readings := []uint16{5, 5, 5, 5, 5}
	wantAfter := []DRLState{DRLOff, DRLOff, DRLOn, DRLOn, DRLOn}
	for i, v := range readings {
		if got := d.Update(v); got != wantAfter[i] {
			t.Fatalf("reading %d (#%d): state %v, want %v", v, i+1, got, wantAfter[i])
		}
	}
}

func TestDRL_OnToOffAfterDebounce(t *testing.T) {
	d := testDRL()
	for i := 0; i < 3; i++ {
		d.Update(5)
	}
	if d.State() != DRLOn {
		t.Fatal("precondition: controller should be on")
	}
	for i, v := range []uint16{250, 250, 250} {
		got := d.Update(v)
		if i < 2 && got != DRLOn {
			t.Fatalf("toggled off after only %d bright readings", i+1)
		}
		if i == 2 && got != DRLOff {
			t.Fatal("still on after 3 consecutive bright readings")
		}
	}
}

func TestDRL_TransientSpikeDoesNotToggle(t *testing.T) {
	d := testDRL()
	d.Update(5)
	d.Update(5)
	d.Update(200) // spike resets the run
	d.Update(5)
	d.Update(5)
	if d.State() != DRLOff {
		t.Fatal("state toggled despite the debounce run being broken")
	}
	if d.Update(5) != DRLOn {
		t.Fatal("three consecutive dark readings after the spike should turn it on")
	}
}

func TestDRL_HysteresisGap(t *testing.T) {
	d := testDRL()
	for i := 0; i < 3; i++ {
		d.Update(5)
	}
	// Values inside the gap qualify for neither transition.
	for i := 0; i < 10; i++ {
		if d.Update(80) != DRLOn {
			t.Fatal("in-gap reading moved the state")
		}
	}
}

func TestDRL_InitialStateOff(t *testing.T) {
	if testDRL().State() != DRLOff {
		t.Fatal("controller must start off")
	}
}
