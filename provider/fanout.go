package provider

import (
	"time"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/observability"
)

// FanOut selects every active provider in priority order. Results are not
// cached.
type FanOut struct {
	sink observability.Sink
}

var _ Strategy = (*FanOut)(nil)

func NewFanOut(sink observability.Sink) *FanOut {
	return &FanOut{sink: observability.OrNop(sink)}
}

func (s *FanOut) Kind() StrategyKind { return KindFanOut }

func (s *FanOut) Select(sc SelectionContext) (SelectionResult, error) {
	ctx := sc.Context()
	if err := ctx.Err(); err != nil {
		return SelectionResult{}, err
	}
	start := time.Now()

	ordered := sortByPriority(sc.Active())
	if len(ordered) == 0 {
		return SelectionResult{}, errors.NotRegistered(sc.Contract().String())
	}

	s.sink.RecordMetric(ctx, MetricFanOutSize, float64(len(ordered)),
		observability.T(TagKeyContract, sc.Contract().String()),
	)
	recordDuration(ctx, s.sink, sc.Contract(), KindFanOut, start)
	return newResult(KindFanOut, ordered), nil
}
