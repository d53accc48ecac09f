// Package progress renders transfer progress: mpb bars for the client and
// a single-line bar for the server.
package progress

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type Progress struct {
	progress *mpb.Progress
	opts     []mpb.ContainerOption
}

func New(opts ...mpb.ContainerOption) *Progress {
	return &Progress{
		progress: mpb.New(opts...),
		opts:     opts,
	}
}

// Tracker is an io.Writer that advances one bar by the bytes written.
type Tracker struct {
	bar *mpb.Bar
}

func (t *Tracker) Write(p []byte) (int, error) {
	if t.bar != nil {
		t.bar.IncrBy(len(p))
	}
	return len(p), nil
}

// Finish drops the bar if the transfer stopped short, so Wait returns.
func (t *Tracker) Finish() {
	if t.bar != nil && !t.bar.Completed() {
		t.bar.Abort(false)
	}
}

func (t *Tracker) Completed() bool {
	return t.bar == nil || t.bar.Completed()
}

func (p *Progress) Track(n int64, text string) *Tracker {
	if n <= 0 {
		return &Tracker{}
	}

	bar := p.progress.AddBar(n,
		mpb.PrependDecorators(
			decor.Name(text, decor.WC{W: 12, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(1, decor.WC{W: 12, C: decor.DindentRight}),
		),
	)

	return &Tracker{bar: bar}
}

func (p *Progress) Wait() {
	p.progress.Wait()
}

// Reset waits for the current bars and starts a fresh container.
func (p *Progress) Reset() {
	if p.progress != nil {
		p.progress.Wait()
	}

	p.progress = mpb.New(p.opts...)
}
