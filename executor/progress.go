package executor

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/openfluke/headcount/logging"
)

// progress aggregates bits processed by all workers of one run and emits a
// log record at most once per interval.
type progress struct {
	ctx     context.Context
	log     *logging.Logger
	total   uint64
	done    atomic.Uint64
	limiter *rate.Limiter
}

func newProgress(ctx context.Context, log *logging.Logger, total uint64, every time.Duration) *progress {
	p := &progress{ctx: ctx, log: log, total: total}
	if every > 0 {
		p.limiter = rate.NewLimiter(rate.Every(every), 1)
		// The first token would fire immediately on tiny runs.
		p.limiter.Allow()
	}
	return p
}

func (p *progress) add(bits uint64) {
	done := p.done.Add(bits)
	if p.limiter != nil && p.limiter.Allow() {
		p.log.LogProgress(p.ctx, done, p.total)
	}
}

// retract withdraws bits reported by a partition that is about to be rerun.
func (p *progress) retract(bits uint64) {
	p.done.Add(^(bits - 1))
}

func (p *progress) Done() uint64 { return p.done.Load() }
