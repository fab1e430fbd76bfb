package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/siptransfer/report"
)

func boolPtr(b bool) *bool { return &b }

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path     string
		n        int
		expected string
	}{
		{"sips/sip-1", 40, "sips/sip-1"},
		{"abcdefghij", 10, "abcdefghij"},
		{"abcdefghijk", 10, "...efghijk"},
	}

	for _, tt := range tests {
		result := truncatePath(tt.path, tt.n)
		if result != tt.expected {
			t.Errorf("truncatePath(%q, %d) = %q; want %q", tt.path, tt.n, result, tt.expected)
		}
	}
}

func TestStateFromRecords(t *testing.T) {
	records := []*report.Record{
		{Token: "a", Target: "sip-a", Progress: report.ProgressSnapshot{Status: report.StatusRunning, Numeric: 50}},
		{Token: "b", Target: "sip-b", Progress: report.ProgressSnapshot{Status: report.StatusCompleted, Numeric: 100}, Data: report.Result{Success: boolPtr(true)}},
		{Token: "c", Target: "sip-c", Progress: report.ProgressSnapshot{Status: report.StatusCompleted, Numeric: 100}, Data: report.Result{Success: boolPtr(false)}},
		{Token: "d", Target: "sip-d", Progress: report.ProgressSnapshot{Status: report.StatusQueued}},
	}

	state := StateFromRecords(records, 2, 4)
	if len(state.Jobs) != 4 {
		t.Fatalf("Expected 4 jobs, got %d", len(state.Jobs))
	}

	finished, failed := state.Counts()
	if finished != 2 || failed != 1 {
		t.Errorf("Counts() = %d, %d; want 2, 1", finished, failed)
	}

	if p := state.Percent(); p != 0.625 {
		t.Errorf("Percent() = %v; want 0.625", p)
	}

	if (&UIState{}).Percent() != 0 {
		t.Error("Expected empty state to be at 0")
	}
}

func TestStatusLabel(t *testing.T) {
	if got := statusLabel(JobView{Status: report.StatusRunning}); got != "running" {
		t.Errorf("unexpected label %q", got)
	}
	if got := statusLabel(JobView{Success: boolPtr(true)}); got != "success" {
		t.Errorf("unexpected label %q", got)
	}
	if got := statusLabel(JobView{Success: boolPtr(false)}); got != "failed" {
		t.Errorf("unexpected label %q", got)
	}
}

func TestTUIModelInitialization(t *testing.T) {
	state := &UIState{
		MaxWorkers: 10,
	}
	model := NewTUIModel(state, nil)

	if model.state.MaxWorkers != 10 {
		t.Errorf("Expected MaxWorkers 10, got %d", model.state.MaxWorkers)
	}

	view := model.View()
	if view == "" {
		t.Errorf("View rendered empty string")
	}

	if !strings.Contains(view, "Initializing...") {
		t.Errorf("Expected Initializing view when width is 0")
	}
}

func TestTUIModelView(t *testing.T) {
	state := StateFromRecords([]*report.Record{
		{Token: "a", Target: "sips/sip-a", Progress: report.ProgressSnapshot{Status: report.StatusRunning, Verbose: "syncing files, 50% @ 1.00MB/s", Numeric: 50}},
	}, 1, 4)

	var model tea.Model = NewTUIModel(state, nil)
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})

	view := model.View()
	for _, want := range []string{"Jobs: 0/1 finished", "sips/sip-a", "syncing files, 50% @ 1.00MB/s"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}

	done := StateFromRecords([]*report.Record{
		{Token: "a", Target: "sips/sip-a", Data: report.Result{Success: boolPtr(false)}},
	}, 1, 4)
	done.Done = true
	model, _ = model.Update(TUIUpdateMsg{State: done})
	if !strings.Contains(model.View(), "1 transfer(s) failed.") {
		t.Errorf("Expected failure footer:\n%s", model.View())
	}
}

func TestTUIModelScaleWorkers(t *testing.T) {
	var deltas []int
	state := &UIState{ActiveWorkers: 1, MaxWorkers: 2}

	var model tea.Model = NewTUIModel(state, func(delta int) { deltas = append(deltas, delta) })

	model, _ = model.Update(WorkerCountMsg(1))
	model, _ = model.Update(WorkerCountMsg(1)) // above max, ignored
	model, _ = model.Update(WorkerCountMsg(-1))
	model, _ = model.Update(WorkerCountMsg(-1)) // below one, ignored

	if len(deltas) != 2 || deltas[0] != 1 || deltas[1] != -1 {
		t.Errorf("unexpected scale calls %v", deltas)
	}
	if got := model.(TUIModel).state.ActiveWorkers; got != 1 {
		t.Errorf("Expected 1 active worker, got %d", got)
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	if cmd == nil {
		t.Fatal("Expected a command for '+'")
	}
	if msg, ok := cmd().(WorkerCountMsg); !ok || msg != 1 {
		t.Errorf("Expected WorkerCountMsg(1), got %v", msg)
	}
}
