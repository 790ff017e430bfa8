package metrics

import "context"

// StrategyBreakdown returns how many anchors each resolution strategy produced.
func (q *Query) StrategyBreakdown(ctx context.Context, f Filter) (map[string]int, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]int)
	for _, m := range metrics {
		for strategy, n := range m.Strategies {
			breakdown[strategy] += n
		}
	}
	return breakdown, nil
}

// DocumentResolution returns the resolution rate of the latest successful run
// of each document.
func (q *Query) DocumentResolution(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		if !m.Success || m.DocumentID == "" {
			continue
		}
		breakdown[m.DocumentID] = m.ResolutionRate()
	}
	return breakdown, nil
}

// ErrorBreakdown returns failed run counts by error type.
func (q *Query) ErrorBreakdown(ctx context.Context, f Filter) (map[string]int, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]int)
	for _, m := range metrics {
		if !m.Success {
			breakdown[m.ErrorType]++
		}
	}
	return breakdown, nil
}
