package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foward955/runner/internal/runner"
)

func sampleRun(id string) *Run {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := runner.Result{Status: runner.TimedOut, ExitCode: -1, Err: runner.ErrTimedOut}
	r := NewRun(id, "/tmp/loop.js", "embedded", started, res, []runner.Chunk{
		{Source: runner.Stdout, Text: "one"},
		{Source: runner.Stderr, Text: "warn"},
		{Source: runner.Stdout, Text: "two"},
	})
	r.EndedAt = started.Add(3 * time.Second)
	return r
}

func TestNewRun(t *testing.T) {
	r := sampleRun("r1")
	if r.Status != runner.TimedOut {
		t.Errorf("Status = %v, want timed_out", r.Status)
	}
	if r.Error != "script timed out" {
		t.Errorf("Error = %q, want %q", r.Error, "script timed out")
	}
	if r.Duration() != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", r.Duration())
	}
}

func TestBySource(t *testing.T) {
	r := sampleRun("r1")

	got := BySource(r, runner.Stdout)
	if len(got) != 2 || got[0].Text != "one" || got[1].Text != "two" {
		t.Errorf("BySource(stdout) = %v, want [one two]", got)
	}
	if got := BySource(r, runner.Engine); len(got) != 0 {
		t.Errorf("BySource(engine) = %v, want empty", got)
	}
	if got := BySource(r, ""); len(got) != 3 {
		t.Errorf("BySource(\"\") returned %d chunks, want 3", len(got))
	}
}

func TestDiskStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	s := NewDiskStore(dir)

	want := sampleRun("abc")
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Status != runner.TimedOut {
		t.Errorf("Status = %v, want timed_out", got.Status)
	}
	if got.Script != want.Script || len(got.Output) != 3 {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
}

func TestDiskStore_TempDir(t *testing.T) {
	s := NewDiskStore("")
	if err := s.Save(sampleRun("tmp")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(s.dir) })

	if !strings.Contains(filepath.Base(s.dir), "runner-runs-") {
		t.Errorf("dir = %q, want runner-runs-* temp dir", s.dir)
	}
}

func TestDiskStore_LoadMissing(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	_, err := s.Load("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDiskStore_RejectsPathInID(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	_, err := s.Load("../etc/passwd")
	if err == nil || !strings.Contains(err.Error(), "invalid run ID") {
		t.Errorf("err = %v, want invalid run ID", err)
	}
}

// countingStore counts backing-store calls.
type countingStore struct {
	saves, loads int
	runs         map[string]*Run
}

func (c *countingStore) Save(r *Run) error {
	c.saves++
	if c.runs == nil {
		c.runs = make(map[string]*Run)
	}
	c.runs[r.ID] = r
	return nil
}

func (c *countingStore) Load(id string) (*Run, error) {
	c.loads++
	r, ok := c.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func TestDiscard(t *testing.T) {
	if err := Discard.Save(sampleRun("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Discard.Load("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLRUStore_HitAndMiss(t *testing.T) {
	back := &countingStore{}
	s := NewLRUStore(2, back)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(sampleRun(id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	if back.saves != 3 {
		t.Errorf("backing saves = %d, want 3", back.saves)
	}

	// "a" was evicted, so this goes to the backing store.
	if _, err := s.Load("a"); err != nil {
		t.Fatalf("Load(a): %v", err)
	}
	if back.loads != 1 {
		t.Errorf("backing loads = %d, want 1", back.loads)
	}

	// "a" is cached now.
	if _, err := s.Load("a"); err != nil {
		t.Fatalf("Load(a): %v", err)
	}
	if back.loads != 1 {
		t.Errorf("backing loads = %d, want 1 after cache hit", back.loads)
	}
}

func TestLRUStore_Recent(t *testing.T) {
	s := NewLRUStore(3, &countingStore{})
	for _, id := range []string{"a", "b", "c", "d"} {
		_ = s.Save(sampleRun(id))
	}

	got := s.Recent(10)
	if len(got) != 3 {
		t.Fatalf("Recent returned %d runs, want 3", len(got))
	}
	if got[0].ID != "d" || got[2].ID != "b" {
		t.Errorf("Recent = [%s %s %s], want [d c b]", got[0].ID, got[1].ID, got[2].ID)
	}
	if got := s.Recent(1); len(got) != 1 || got[0].ID != "d" {
		t.Errorf("Recent(1) = %v, want [d]", got)
	}
}

func TestLRUStore_LoadKeepsRecentOrder(t *testing.T) {
	s := NewLRUStore(3, &countingStore{})
	for _, id := range []string{"first", "second", "third"} {
		_ = s.Save(sampleRun(id))
	}

	if _, err := s.Load("first"); err != nil {
		t.Fatalf("Load(first): %v", err)
	}

	got := s.Recent(3)
	if len(got) != 3 {
		t.Fatalf("Recent returned %d runs, want 3", len(got))
	}
	if got[0].ID != "third" || got[1].ID != "second" || got[2].ID != "first" {
		t.Errorf("Recent = [%s %s %s], want [third second first]", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestLRUStore_LoadedRunsStayOutOfRecent(t *testing.T) {
	back := &countingStore{}
	_ = back.Save(sampleRun("old"))
	s := NewLRUStore(2, back)
	_ = s.Save(sampleRun("new"))

	if _, err := s.Load("old"); err != nil {
		t.Fatalf("Load(old): %v", err)
	}

	got := s.Recent(5)
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("Recent = %v, want only the saved run", got)
	}
}
