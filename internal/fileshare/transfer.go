package fileshare

import (
	"fmt"
	"time"
)

// Direction identifies what a TransferJob is doing.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
	Update   Direction = "update"
)

// DefaultProgressInterval is the minimum time between two progress reports.
const DefaultProgressInterval = 150 * time.Millisecond

// Progress is one snapshot of a running transfer.
type Progress struct {
	Direction  Direction
	FileName   string
	BytesMoved int64
	TotalSize  int64
	Percent    float64
	Rate       float64 // bytes per second since the job started
}

// String formats the snapshot as a status line for presentation layers.
func (p Progress) String() string {
	return fmt.Sprintf("Processing: %.1f%% (%s / %s) - Speed: %s/s",
		p.Percent, FormatSize(float64(p.BytesMoved)), FormatSize(float64(p.TotalSize)), FormatSize(p.Rate))
}

// ProgressFunc receives throttled progress snapshots.
type ProgressFunc func(Progress)

// TransferJob is scoped to one command exchange and never persisted.
type TransferJob struct {
	Direction  Direction
	FileName   string
	TotalSize  int64
	BytesMoved int64
	StartTime  time.Time

	clock      Clock
	interval   time.Duration
	lastReport time.Time
	onProgress ProgressFunc
}

// NewTransferJob starts a job at clock.Now(). onProgress may be nil.
func NewTransferJob(dir Direction, fileName string, totalSize int64, clock Clock, onProgress ProgressFunc) *TransferJob {
	if clock == nil {
		clock = RealClock{}
	}
	now := clock.Now()
	return &TransferJob{
		Direction:  dir,
		FileName:   fileName,
		TotalSize:  totalSize,
		StartTime:  now,
		clock:      clock,
		interval:   DefaultProgressInterval,
		lastReport: now,
		onProgress: onProgress,
	}
}

// SetInterval changes the progress throttling window.
func (j *TransferJob) SetInterval(d time.Duration) {
	j.interval = d
}

// Advance records n more bytes moved and reports progress when the
// throttling window has elapsed or the job just completed.
func (j *TransferJob) Advance(n int64) {
	j.BytesMoved += n
	now := j.clock.Now()
	if j.Done() || now.Sub(j.lastReport) >= j.interval {
		j.lastReport = now
		j.report(now)
	}
}

// Done reports whether exactly the announced size has been moved.
func (j *TransferJob) Done() bool {
	return j.BytesMoved == j.TotalSize
}

// Remaining returns how many bytes are still expected.
func (j *TransferJob) Remaining() int64 {
	return j.TotalSize - j.BytesMoved
}

// Snapshot computes the current progress values.
func (j *TransferJob) Snapshot() Progress {
	return j.snapshotAt(j.clock.Now())
}

func (j *TransferJob) report(now time.Time) {
	if j.onProgress != nil {
		j.onProgress(j.snapshotAt(now))
	}
}

func (j *TransferJob) snapshotAt(now time.Time) Progress {
	p := Progress{
		Direction:  j.Direction,
		FileName:   j.FileName,
		BytesMoved: j.BytesMoved,
		TotalSize:  j.TotalSize,
	}
	if j.TotalSize > 0 {
		p.Percent = float64(j.BytesMoved) / float64(j.TotalSize) * 100
	} else {
		p.Percent = 100
	}
	// Guard against a zero-length window.
	if elapsed := now.Sub(j.StartTime).Seconds(); elapsed > 0 {
		p.Rate = float64(j.BytesMoved) / elapsed
	}
	return p
}
