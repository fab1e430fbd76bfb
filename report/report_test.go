package report

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMergePreservesOrder(t *testing.T) {
	job := NewLog("Job")
	job.Log(SeverityEvent, "first")

	attempt := NewLog("Transfer Manager")
	attempt.Log(SeverityWarning, "second")
	attempt.Log(SeverityError, "third")

	job.Merge(attempt)
	job.Log(SeverityInfo, "fourth")

	entries := job.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, []string{
		entries[0].Body, entries[1].Body, entries[2].Body, entries[3].Body,
	})
	assert.Equal(t, "Job", entries[0].Origin)
	assert.Equal(t, "Transfer Manager", entries[1].Origin)
	assert.Equal(t, 1, job.Count(SeverityError))
	assert.True(t, job.Failed())
	assert.False(t, attempt.Contains(SeverityInfo))
}

func TestLogMergeSelfAndNil(t *testing.T) {
	l := NewLog("x")
	l.Log(SeverityEvent, "a")
	l.Merge(l)
	l.Merge(nil)
	assert.Equal(t, 1, l.Len())
}

func TestLogZeroValue(t *testing.T) {
	var l Log
	l.LogFrom(SeverityError, "origin", "boom")
	assert.True(t, l.Failed())
	assert.Equal(t, "origin", l.Filter(SeverityError)[0].Origin)
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewLog("x")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Log(SeverityEvent, "e")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, l.Len())
}

func TestProgressLifecycle(t *testing.T) {
	p := NewProgress()
	assert.Equal(t, StatusQueued, p.Snapshot().Status)

	p.Run()
	p.Update(42, "syncing files, 42% @ 1.00MB/s")
	snap := p.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 42, snap.Numeric)
	assert.Equal(t, "syncing files, 42% @ 1.00MB/s", snap.Verbose)

	p.Update(140, "over")
	assert.Equal(t, 100, p.Snapshot().Numeric)
	p.Update(-3, "under")
	assert.Equal(t, 0, p.Snapshot().Numeric)

	p.Complete()
	snap = p.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Numeric)
}

func TestReportTerminal(t *testing.T) {
	r := New("sip")
	require.NotEmpty(t, r.Token)

	_, ok := r.Success()
	assert.False(t, ok)
	assert.False(t, r.Terminal())

	r.SetSuccess(true)
	assert.False(t, r.Terminal(), "progress has not completed yet")

	r.Progress.Complete()
	assert.True(t, r.Terminal())
	success, ok := r.Success()
	assert.True(t, ok)
	assert.True(t, success)
}

func TestReportTerminalWhenAborted(t *testing.T) {
	r := New("sip")
	r.Progress.Update(40, "syncing files, 40% @ 1.00MB/s")
	r.SetSuccess(false)
	r.Progress.Abort("transfer of SIP 'sip' aborted")

	assert.True(t, r.Terminal())
	rec := r.Snapshot()
	assert.True(t, rec.Terminal())
	assert.Equal(t, StatusAborted, rec.Progress.Status)
	assert.Equal(t, 40, rec.Progress.Numeric)
}

func TestSnapshotJSON(t *testing.T) {
	r := NewWithToken("abc", "sip")
	r.Log.Log(SeverityEvent, "started")
	r.SetSuccess(false)
	r.Progress.Complete()

	data, err := json.Marshal(r.Snapshot())
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "abc", rec.Token)
	assert.Equal(t, "sip", rec.Target)
	require.NotNil(t, rec.Data.Success)
	assert.False(t, *rec.Data.Success)
	assert.True(t, rec.Terminal())
	require.Len(t, rec.Log, 1)
	assert.Equal(t, SeverityEvent, rec.Log[0].Severity)
}

func TestSnapshotUnsetSuccess(t *testing.T) {
	rec := New("sip").Snapshot()
	assert.Nil(t, rec.Data.Success)
	assert.False(t, rec.Terminal())
}
