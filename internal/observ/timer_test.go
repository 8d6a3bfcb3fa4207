package observ

import (
	"testing"
	"time"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	if r := tm.Report(); r.Phases != nil || r.TotalMS != 0 {
		t.Fatalf("empty report %+v", r)
	}
	a := tm.Begin("expand", 3)
	time.Sleep(2 * time.Millisecond)
	if d := tm.End(a, "3 items"); d < 2*time.Millisecond {
		t.Errorf("expand took %v", d)
	}
	b := tm.Begin("emit", 7)
	tm.End(b, "")
	if d := tm.End(9, "out of range"); d != 0 {
		t.Errorf("bad index returned %v", d)
	}

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Name != "expand" || r.Phases[1].Items != 7 || r.Phases[0].Note != "3 items" {
		t.Fatalf("phases %+v", r.Phases)
	}
	if r.TotalMS < r.Phases[0].DurationMS || r.Phases[0].DurationMS < 2 {
		t.Errorf("total %.3f, expand %.3f", r.TotalMS, r.Phases[0].DurationMS)
	}
}
