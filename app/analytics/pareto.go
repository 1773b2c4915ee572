package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

// VitalFewShare is the cumulative share covered by the vital few failure modes
const VitalFewShare = 80.0

// Unclassified is the code of failures without a failure mode
const Unclassified = "unclassified"

// Pareto is failure modes ordered by weight with cumulative shares
type Pareto struct {
	Metric enums.ParetoMetric `json:"metric"`
	Total  int                `json:"total"`
	Items  []ParetoItem       `json:"items"`
}

// ParetoItem is a single failure mode of the Pareto analysis
type ParetoItem struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Value      int     `json:"value"`
	Percent    float64 `json:"percent"`
	Cumulative float64 `json:"cumulative"`
	VitalFew   bool    `json:"vital_few"`
}

// Pareto weighs failure modes by number of failures or by downtime minutes
func (s *Service) Pareto(ctx context.Context, f Filter, metric enums.ParetoMetric) (Pareto, error) {
	if _, err := enums.ParseParetoMetric(metric.String()); err != nil {
		return Pareto{}, err
	}
	counts, err := s.store.FailureModeCounts(ctx, f)
	if err != nil {
		return Pareto{}, fmt.Errorf("failed to get failure mode counts: %w", err)
	}
	return BuildPareto(counts, metric), nil
}

// BuildPareto makes Pareto from per-mode counts. Modes with zero weight are skipped, items are sorted by
// weight desc and code asc. An item belongs to the vital few if the share before it is below VitalFewShare,
// so the item crossing the threshold is included.
func BuildPareto(counts []persistence.ModeCount, metric enums.ParetoMetric) Pareto {
	res := Pareto{Metric: metric, Items: []ParetoItem{}}
	for _, c := range counts {
		v := c.Count
		if metric == enums.ParetoMetricDowntime {
			v = c.Downtime
		}
		if v <= 0 {
			continue
		}
		item := ParetoItem{Code: c.Code, Name: c.Name, Value: v}
		if item.Code == "" {
			item.Code, item.Name = Unclassified, "Unclassified"
		}
		if item.Name == "" {
			item.Name = item.Code
		}
		res.Items = append(res.Items, item)
		res.Total += v
	}
	if res.Total == 0 {
		return res
	}

	sort.SliceStable(res.Items, func(i, j int) bool {
		if res.Items[i].Value != res.Items[j].Value {
			return res.Items[i].Value > res.Items[j].Value
		}
		return res.Items[i].Code < res.Items[j].Code
	})

	running := 0
	for i := range res.Items {
		before := percent(running, res.Total)
		running += res.Items[i].Value
		res.Items[i].Percent = percent(res.Items[i].Value, res.Total)
		res.Items[i].Cumulative = percent(running, res.Total)
		res.Items[i].VitalFew = before < VitalFewShare
	}
	return res
}

func percent(v, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(v) * 100 / float64(total)
}
