// Package pipeline recomputes the depth curve and ladder whenever the book
// store changes and hands the result to every renderer.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"depthview/internal/book"
	"depthview/internal/depth"
	"depthview/internal/ladder"
	"depthview/internal/logger"
	"depthview/internal/model"
)

// Renderer consumes finished views. Render must return promptly; the next
// cycle does not start until every renderer has returned.
type Renderer interface {
	Name() string
	Render(ctx context.Context, v model.View) error
}

type Recorder interface {
	RecordCycle(time.Duration)
	RecordSuperseded(n uint64)
	RecordRenderError(renderer string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(time.Duration) {}
func (nopRecorder) RecordSuperseded(uint64)   {}
func (nopRecorder) RecordRenderError(string)  {}

type Config struct {
	LadderDepth     int
	MergeDuplicates bool
}

type Pipeline struct {
	store     *book.Store
	agg       depth.Aggregator
	depth     int
	renderers []Renderer
	rec       Recorder
	log       *logger.Logger
	now       func() time.Time

	latest atomic.Pointer[model.View]
}

func New(store *book.Store, cfg Config, rec Recorder, log *logger.Logger, renderers ...Renderer) *Pipeline {
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.LadderDepth <= 0 {
		cfg.LadderDepth = ladder.DefaultDepth
	}
	p := &Pipeline{
		store:     store,
		agg:       depth.Aggregator{MergeDuplicates: cfg.MergeDuplicates},
		depth:     cfg.LadderDepth,
		renderers: renderers,
		rec:       rec,
		log:       log,
		now:       time.Now,
	}
	initial := p.Build(store.State())
	p.latest.Store(&initial)
	return p
}

// Build derives a view from one store state. It reads nothing else.
func (p *Pipeline) Build(st book.State) model.View {
	snap := st.Snapshot
	return model.View{
		Seq:       st.Seq,
		Status:    st.Status,
		Depth:     p.agg.Aggregate(snap.Bids, snap.Asks),
		Ladder:    ladder.Format(snap.Bids, snap.Asks, p.depth),
		UpdatedAt: p.now(),
	}
}

// Latest is the most recently built view.
func (p *Pipeline) Latest() model.View {
	return *p.latest.Load()
}

// Run renders the current state once, then one cycle per store notification
// until ctx is done. Notifications that arrive mid-cycle collapse into one.
func (p *Pipeline) Run(ctx context.Context) error {
	mb, cancel := p.store.Subscribe()
	defer cancel()

	p.cycle(ctx, p.store.State())

	var seen uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mb.C():
		}

		st, ok := mb.Take()
		if !ok {
			continue
		}
		if d := mb.Dropped(); d > seen {
			p.rec.RecordSuperseded(d - seen)
			seen = d
		}
		p.cycle(ctx, st)
	}
}

func (p *Pipeline) cycle(ctx context.Context, st book.State) {
	start := time.Now()
	v := p.Build(st)
	p.latest.Store(&v)

	for _, r := range p.renderers {
		if err := r.Render(ctx, v); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.rec.RecordRenderError(r.Name())
			p.log.Error(errors.Wrapf(err, "render %s", r.Name()), logger.NewField("seq", v.Seq))
		}
	}
	p.rec.RecordCycle(time.Since(start))
}
