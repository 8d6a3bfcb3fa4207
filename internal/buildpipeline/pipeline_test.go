package buildpipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"callgen/internal/driver"
	"callgen/internal/project"
)

var testdata = filepath.Join("..", "project", "testdata", project.ManifestName)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// last returns the final status of every item.
func (r *recorder) last() map[string]Status {
	out := map[string]Status{}
	for _, ev := range r.events {
		if ev.Item != "" {
			out[ev.Item] = ev.Status
		}
	}
	return out
}

func TestRunWritesModule(t *testing.T) {
	rec := &recorder{}
	req := &Request{
		ManifestPath: testdata,
		OutputPath:   filepath.Join(t.TempDir(), "out", "callgen.ir"),
		Progress:     rec,
	}
	prog, _, err := Load(req)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"combine", "Counter.add", "pick", "combine_first", "bound_add", "pick_int", "dynamic_combine"}
	if got := Items(prog); !slices.Equal(got, want) {
		t.Fatalf("items %v", got)
	}

	res, err := Run(context.Background(), prog, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bag.HasErrors() {
		t.Fatalf("diagnostics %v", res.Bag.Items())
	}
	for item, st := range rec.last() {
		if st != StatusDone {
			t.Errorf("%s ended %s", item, st)
		}
	}
	for _, stage := range []Stage{StageExpand, StageEmit, StageWrite} {
		if !res.Timings.Has(stage) {
			t.Errorf("no timing for %s", stage)
		}
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, sym := range []string{"@call.combine", "@make_combine_first", "@make_dynamic_combine"} {
		if !strings.Contains(string(data), sym) {
			t.Errorf("module lacks %s", sym)
		}
	}
}

func TestRunSigsOnly(t *testing.T) {
	cache, err := driver.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	req := &Request{ManifestPath: testdata, SigsOnly: true, Cache: cache}
	for round := range 2 {
		rec := &recorder{}
		req.Progress = rec
		prog, _, err := Load(req)
		if err != nil {
			t.Fatal(err)
		}
		res, err := Run(context.Background(), prog, req)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Lowered.Callers != nil || res.Timings.Has(StageEmit) {
			t.Fatalf("sigs-only run emitted code")
		}
		if want := round * len(prog.Funcs); res.Lowered.FromDisk() != want {
			t.Errorf("round %d: %d from disk, want %d", round, res.Lowered.FromDisk(), want)
		}
		if st := rec.last()["pick"]; st != StatusDone {
			t.Errorf("pick ended %s", st)
		}
	}
}

func TestLoadRejectsBadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), project.ManifestName)
	if err := os.WriteFile(path, []byte("[[partial]]\nname = \"p\"\nfunc = \"nope\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	_, bag, err := Load(&Request{ManifestPath: path, Progress: rec})
	if !errors.Is(err, ErrManifest) {
		t.Fatalf("Load error %v", err)
	}
	if bag.Len() != 1 {
		t.Fatalf("diagnostics %v", bag.Items())
	}
	if ev := rec.events[len(rec.events)-1]; ev.Stage != StageLoad || ev.Status != StatusError {
		t.Errorf("last event %+v", ev)
	}
}

func TestChannelSink(t *testing.T) {
	ch := make(chan Event, 1)
	ChannelSink{Ch: ch}.OnEvent(Event{Item: "f", Stage: StageEmit, Status: StatusDone, Elapsed: time.Millisecond})
	if ev := <-ch; ev.Item != "f" || ev.Status != StatusDone {
		t.Fatalf("event %+v", ev)
	}
	ChannelSink{}.OnEvent(Event{})

	var seen []string
	count := 0
	sink := Tee(SinkFunc(func(ev Event) { seen = append(seen, ev.Item) }), nil, SinkFunc(func(Event) { count++ }))
	sink.OnEvent(Event{Item: "a"})
	sink.OnEvent(Event{Item: "b"})
	if len(seen) != 2 || seen[1] != "b" || count != 2 {
		t.Errorf("tee delivered %v, %d", seen, count)
	}
	SinkFunc(nil).OnEvent(Event{})
}
