// Package download implements the resumable chunked download engine
// (spec.md §4.9, C10): atomic .tmp-to-final install, SHA-256 verification,
// and retry-wrapped transient failures, grounded on the teacher's HTTP
// client pooling (internal/pipeline/httpclient.go) and its trace-span
// lifecycle pattern (internal/trace/tracer.go) for the per-download ID.
package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/hashutil"
	"github.com/localmind-ai/ondevice-sdk/internal/httpclient"
	"github.com/localmind-ai/ondevice-sdk/internal/retry"
)

// State is the lifecycle state of one download.
type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateVerifying   State = "verifying"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// ProgressFunc receives a fraction in [0,1], monotonically non-decreasing,
// ending at exactly 1.0 on success.
type ProgressFunc func(fraction float64)

const chunkSize = 8192

// Download represents one in-flight or completed transfer. Its destructor
// equivalent, Close, deletes any residual .tmp file if the transfer never
// completed — callers should `defer d.Close()` immediately after New.
type Download struct {
	ID             string
	URL            string
	DestPath       string
	ExpectedSize   int64
	ChecksumSHA256 string

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
}

// New creates a download descriptor. Call Run to execute it.
func New(url, destPath string, expectedSize int64, checksumSHA256 string) *Download {
	return &Download{
		ID:             uuid.NewString(),
		URL:            url,
		DestPath:       destPath,
		ExpectedSize:   expectedSize,
		ChecksumSHA256: checksumSHA256,
		state:          StatePending,
	}
}

func (d *Download) tmpPath() string {
	return d.DestPath + ".tmp"
}

// State returns the current lifecycle state.
func (d *Download) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Download) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Cancel interrupts an in-flight Run, causing it to return OperationCancelled.
func (d *Download) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close deletes any residual .tmp file if the transfer never reached
// StateCompleted. Errors are swallowed (best-effort), per spec.md §4.9 step 7.
func (d *Download) Close() {
	if d.State() == StateCompleted {
		return
	}
	_ = os.Remove(d.tmpPath())
}

// AvailableStorageBytes reports free space on the filesystem containing dir.
func AvailableStorageBytes(dir string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, aierr.New(aierr.StorageReadError, "could not stat storage device", err.Error())
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// Run executes the download protocol: pre-flight storage check, resume
// detection, chunked transfer with retry on transient failure, checksum
// verification, and atomic rename.
func (d *Download) Run(ctx context.Context, client *httpclient.Client, onProgress ProgressFunc) error {
	if err := httpclient.ValidateHTTPS(d.URL); err != nil {
		return err
	}

	destDir := filepath.Dir(d.DestPath)
	if free, err := AvailableStorageBytes(destDir); err == nil {
		required := int64(float64(d.ExpectedSize) * 1.1)
		if free < required {
			return aierr.New(aierr.StorageInsufficientSpace,
				"not enough free storage for this download", "").
				WithRecovery("free up space or choose a smaller model")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	d.setState(StateDownloading)

	var startOffset int64
	if fi, err := os.Stat(d.tmpPath()); err == nil && fi.Size() < d.ExpectedSize {
		startOffset = fi.Size()
	} else if err == nil {
		// Stale or oversized .tmp from a previous attempt; restart clean.
		_ = os.Remove(d.tmpPath())
	}

	flags := os.O_CREATE | os.O_WRONLY
	if startOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, ferr := os.OpenFile(d.tmpPath(), flags, 0o644)
	if ferr != nil {
		d.setState(StateFailed)
		return aierr.New(aierr.StorageReadError, "could not open temp file for writing", ferr.Error())
	}
	defer f.Close()

	if onProgress != nil && startOffset > 0 {
		onProgress(clampFraction(startOffset, d.ExpectedSize))
	}

	progress := func(total int64) {
		if onProgress != nil {
			onProgress(clampFraction(total, d.ExpectedSize))
		}
	}

	_, err := retry.WithRetry(ctx, retry.DownloadConfig(), func() (struct{}, error) {
		n, err := httpclient.GetRange(ctx, client, d.URL, startOffset, f, chunkSize, progress)
		startOffset = n
		return struct{}{}, err
	}, nil)

	if err != nil {
		if aierr.CodeOf(err) == aierr.OperationCancelled {
			d.setState(StateCancelled)
			_ = os.Remove(d.tmpPath())
			return err
		}
		d.setState(StateFailed)
		return err
	}

	d.setState(StateVerifying)
	if err := f.Close(); err != nil {
		d.setState(StateFailed)
		return aierr.New(aierr.StorageReadError, "failed flushing downloaded file", err.Error())
	}

	if d.ChecksumSHA256 != "" {
		computed := hashutil.File(d.tmpPath())
		if !hashutil.Equal(computed, d.ChecksumSHA256) {
			_ = os.Remove(d.tmpPath())
			d.setState(StateFailed)
			return aierr.New(aierr.ModelFileCorrupted,
				"downloaded artifact failed checksum verification",
				"expected="+d.ChecksumSHA256+" computed="+computed)
		}
	}

	if err := os.Rename(d.tmpPath(), d.DestPath); err != nil {
		d.setState(StateFailed)
		return aierr.New(aierr.StorageReadError, "failed to install downloaded artifact", err.Error())
	}

	d.setState(StateCompleted)
	if onProgress != nil {
		onProgress(1.0)
	}
	return nil
}

func clampFraction(downloaded, expected int64) float64 {
	if expected <= 0 {
		return 1.0
	}
	f := float64(downloaded) / float64(expected)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
