package fileshare

import (
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTransferJob_ThrottlesProgress(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
	var reports []Progress
	job := NewTransferJob(Download, "alice_report.pdf", 1000, clock, func(p Progress) {
		reports = append(reports, p)
	})

	// Within the window: no report.
	job.Advance(100)
	if len(reports) != 0 {
		t.Fatalf("got %d reports before interval elapsed, want 0", len(reports))
	}

	clock.Advance(time.Second)
	job.Advance(100)
	if len(reports) != 1 {
		t.Fatalf("got %d reports after interval, want 1", len(reports))
	}
	if reports[0].BytesMoved != 200 {
		t.Errorf("BytesMoved = %d, want 200", reports[0].BytesMoved)
	}
	if reports[0].Percent != 20 {
		t.Errorf("Percent = %v, want 20", reports[0].Percent)
	}
	if reports[0].Rate != 200 {
		t.Errorf("Rate = %v, want 200", reports[0].Rate)
	}

	// Completion always reports, even inside the window.
	job.Advance(800)
	if len(reports) != 2 {
		t.Fatalf("got %d reports after completion, want 2", len(reports))
	}
	if !job.Done() {
		t.Error("Done() = false, want true")
	}
	if reports[1].Percent != 100 {
		t.Errorf("final Percent = %v, want 100", reports[1].Percent)
	}
}

func TestTransferJob_ZeroElapsedRate(t *testing.T) {
	clock := &stepClock{now: time.Unix(0, 0)}
	job := NewTransferJob(Upload, "a_b", 10, clock, nil)
	job.Advance(10)

	p := job.Snapshot()
	if p.Rate != 0 {
		t.Errorf("Rate = %v, want 0 for zero-length window", p.Rate)
	}
}

func TestTransferJob_EmptyFile(t *testing.T) {
	job := NewTransferJob(Upload, "a_empty", 0, nil, nil)
	if !job.Done() {
		t.Error("Done() = false for an empty file, want true")
	}
	if got := job.Snapshot().Percent; got != 100 {
		t.Errorf("Percent = %v, want 100", got)
	}
}

func TestProgress_String(t *testing.T) {
	p := Progress{BytesMoved: 1024, TotalSize: 8192, Percent: 12.5, Rate: 512}
	want := "Processing: 12.5% (1.00 KB / 8.00 KB) - Speed: 512.00 B/s"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
