package transfer

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// Bar shows progress of transfers on a progress bar. It is a storage.Progress.
type Bar struct {
	w      io.Writer
	action string

	mu  sync.Mutex
	bar *pb.ProgressBar
}

func NewBar(w io.Writer, action string) *Bar {
	return &Bar{w: w, action: action}
}

func (b *Bar) Planned(files int, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bar := pb.New64(bytes)
	bar.Set(pb.Bytes, true)
	bar.SetWriter(b.w)
	bar.Set("prefix", fmt.Sprintf("%s %d files:", b.action, files))
	b.bar = bar.Start()
}

func (b *Bar) Transferred(key string, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}
	b.bar.Add64(bytes)
}

// Finish stops the bar. It is safe to call when no transfers are planned.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		b.bar.Finish()
	}
}
