package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/umputun/fracas/app/persistence"
)

// MTTR is mean time to repair of corrective work orders completed in the filter range
type MTTR struct {
	Overall  time.Duration `json:"overall"`
	Hours    float64       `json:"hours"`
	Repairs  int           `json:"repairs"`
	PerAsset []AssetMTTR   `json:"per_asset"` // longest repairs first
}

// AssetMTTR is mean time to repair of a single asset
type AssetMTTR struct {
	AssetID   string        `json:"asset_id"`
	AssetTag  string        `json:"asset_tag"`
	AssetName string        `json:"asset_name"`
	MTTR      time.Duration `json:"mttr"`
	Hours     float64       `json:"hours"`
	Repairs   int           `json:"repairs"`
}

// MTTR computes mean of (completed - started) over completed corrective work orders
func (s *Service) MTTR(ctx context.Context, f Filter) (MTTR, error) {
	samples, err := s.store.RepairSamples(ctx, f)
	if err != nil {
		return MTTR{}, err
	}
	return buildMTTR(samples), nil
}

func buildMTTR(samples []persistence.RepairSample) MTTR {
	res := MTTR{PerAsset: []AssetMTTR{}}
	type acc struct {
		item  AssetMTTR
		total time.Duration
	}
	perAsset := map[string]*acc{}
	var order []string
	var total time.Duration
	for _, smp := range samples {
		d := smp.CompletedAt.Sub(smp.StartedAt)
		if d < 0 {
			continue // clock skew, not a repair
		}
		total += d
		res.Repairs++
		a, ok := perAsset[smp.AssetID]
		if !ok {
			a = &acc{item: AssetMTTR{AssetID: smp.AssetID, AssetTag: smp.AssetTag, AssetName: smp.AssetName}}
			perAsset[smp.AssetID] = a
			order = append(order, smp.AssetID)
		}
		a.total += d
		a.item.Repairs++
	}
	if res.Repairs == 0 {
		return res
	}
	res.Overall = meanDuration(total, res.Repairs)
	res.Hours = res.Overall.Hours()

	for _, id := range order {
		a := perAsset[id]
		a.item.MTTR = meanDuration(a.total, a.item.Repairs)
		a.item.Hours = a.item.MTTR.Hours()
		res.PerAsset = append(res.PerAsset, a.item)
	}
	sort.SliceStable(res.PerAsset, func(i, j int) bool {
		if res.PerAsset[i].MTTR != res.PerAsset[j].MTTR {
			return res.PerAsset[i].MTTR > res.PerAsset[j].MTTR
		}
		return res.PerAsset[i].AssetTag < res.PerAsset[j].AssetTag
	})
	return res
}

// MTBF is mean time between failures per asset over the observed operating window
type MTBF struct {
	Overall   time.Duration `json:"overall"` // fleet: total operating time / total failures
	Hours     float64       `json:"hours"`
	Failures  int           `json:"failures"`
	Operating time.Duration `json:"operating"`
	PerAsset  []AssetMTBF   `json:"per_asset"` // shortest MTBF first, assets without failures last
}

// AssetMTBF is mean time between failures of a single asset, MTBF is zero and HasMTBF false without failures
type AssetMTBF struct {
	AssetID   string        `json:"asset_id"`
	AssetTag  string        `json:"asset_tag"`
	AssetName string        `json:"asset_name"`
	Failures  int           `json:"failures"`
	Downtime  int           `json:"downtime_minutes"`
	Operating time.Duration `json:"operating"`
	MTBF      time.Duration `json:"mtbf"`
	Hours     float64       `json:"hours"`
	HasMTBF   bool          `json:"has_mtbf"`
}

// MTBF computes per-asset mean time between failures. The operating window of an asset starts at the later
// of filter start and the asset in-service date (creation date if unknown) and ends at filter end or now.
func (s *Service) MTBF(ctx context.Context, f Filter) (MTBF, error) {
	counts, err := s.store.AssetFailureCounts(ctx, f)
	if err != nil {
		return MTBF{}, err
	}
	end := f.To
	if end.IsZero() || end.After(s.now()) {
		end = s.now()
	}
	return buildMTBF(counts, f.From, end), nil
}

func buildMTBF(counts []persistence.AssetFailures, from, to time.Time) MTBF {
	res := MTBF{PerAsset: make([]AssetMTBF, 0, len(counts))}
	for _, c := range counts {
		start := c.InServiceAt
		if start.IsZero() {
			start = c.CreatedAt
		}
		if from.After(start) {
			start = from
		}
		item := AssetMTBF{AssetID: c.AssetID, AssetTag: c.AssetTag, AssetName: c.AssetName, Failures: c.Failures,
			Downtime: c.Downtime}
		if to.After(start) {
			item.Operating = to.Sub(start)
		}
		if item.Failures > 0 && item.Operating > 0 {
			item.MTBF = meanDuration(item.Operating, item.Failures)
			item.Hours = item.MTBF.Hours()
			item.HasMTBF = true
		}
		res.Operating += item.Operating
		res.Failures += item.Failures
		res.PerAsset = append(res.PerAsset, item)
	}
	if res.Failures > 0 {
		res.Overall = meanDuration(res.Operating, res.Failures)
		res.Hours = res.Overall.Hours()
	}

	sort.SliceStable(res.PerAsset, func(i, j int) bool {
		a, b := res.PerAsset[i], res.PerAsset[j]
		if a.HasMTBF != b.HasMTBF {
			return a.HasMTBF
		}
		if a.MTBF != b.MTBF {
			return a.MTBF < b.MTBF
		}
		return a.AssetTag < b.AssetTag
	})
	return res
}

// meanDuration divides total by n, rounded to a second
func meanDuration(total time.Duration, n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return (total / time.Duration(n)).Round(time.Second)
}
