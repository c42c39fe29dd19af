package joypad

import "testing"

func TestUnselectedGroupReadsAllOnes(t *testing.T) {
	j := New()
	j.WriteSelect(0x30) // neither group selected
	j.SetState(Right | A)
	if got := j.Read() & 0x0F; got != 0x0F {
		t.Fatalf("unselected lower nibble got %#02x want 0x0F", got)
	}
}

func TestDPadSelection(t *testing.T) {
	j := New()
	j.WriteSelect(0x20) // P14 low: d-pad selected
	j.SetState(Right | Down)
	got := j.Read() & 0x0F
	want := byte(0x0F) &^ 0x01 &^ 0x08
	if got != want {
		t.Fatalf("got %#02x want %#02x", got, want)
	}
}

func TestButtonSelection(t *testing.T) {
	j := New()
	j.WriteSelect(0x10) // P15 low: buttons selected
	j.SetState(A | Start)
	got := j.Read() & 0x0F
	want := byte(0x0F) &^ 0x01 &^ 0x08
	if got != want {
		t.Fatalf("got %#02x want %#02x", got, want)
	}
}

func TestInterruptOnPressEdge(t *testing.T) {
	j := New()
	fired := false
	j.RequestInterrupt = func() { fired = true }
	j.WriteSelect(0x20) // d-pad selected
	j.SetState(Up)
	if !fired {
		t.Fatalf("expected interrupt on press edge")
	}
	fired = false
	j.SetState(Up) // no change, no new edge
	if fired {
		t.Fatalf("did not expect interrupt without a new edge")
	}
}
