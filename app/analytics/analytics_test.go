package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/fracas/app/analytics/mocks"
	"github.com/umputun/fracas/app/enums"
	"github.com/umputun/fracas/app/persistence"
)

func day(d, h int) time.Time { return time.Date(2025, time.June, d, h, 0, 0, 0, time.UTC) }

func TestBuildPareto(t *testing.T) {
	counts := []persistence.ModeCount{
		{Code: "", Name: "", Count: 3, Downtime: 60},
		{Code: "LEAK", Name: "Leak", Count: 5, Downtime: 30},
		{Code: "WEAR", Name: "Wear", Count: 2, Downtime: 500},
		{Code: "BRG", Name: "Bearing", Count: 5, Downtime: 10},
		{Code: "ZERO", Name: "never", Count: 0, Downtime: 0},
	}

	t.Run("by count", func(t *testing.T) {
		p := BuildPareto(counts, enums.ParetoMetricCount)
		assert.Equal(t, 15, p.Total)
		require.Len(t, p.Items, 4)
		codes := []string{}
		for _, it := range p.Items {
			codes = append(codes, it.Code)
		}
		assert.Equal(t, []string{"BRG", "LEAK", Unclassified, "WEAR"}, codes, "ties ordered by code")
		assert.Equal(t, "Unclassified", p.Items[2].Name)
		assert.InDelta(t, 33.33, p.Items[0].Percent, 0.01)
		assert.InDelta(t, 66.67, p.Items[1].Cumulative, 0.01)
		assert.InDelta(t, 86.67, p.Items[2].Cumulative, 0.01)
		assert.InDelta(t, 100, p.Items[3].Cumulative, 0.001)
		assert.True(t, p.Items[0].VitalFew)
		assert.True(t, p.Items[1].VitalFew)
		assert.True(t, p.Items[2].VitalFew, "crosses the threshold")
		assert.False(t, p.Items[3].VitalFew)
	})

	t.Run("by downtime", func(t *testing.T) {
		p := BuildPareto(counts, enums.ParetoMetricDowntime)
		assert.Equal(t, 600, p.Total)
		require.Len(t, p.Items, 4)
		assert.Equal(t, "WEAR", p.Items[0].Code)
		assert.Equal(t, 500, p.Items[0].Value)
		assert.InDelta(t, 83.33, p.Items[0].Cumulative, 0.01)
		assert.True(t, p.Items[0].VitalFew)
		assert.False(t, p.Items[1].VitalFew)
	})

	t.Run("empty", func(t *testing.T) {
		p := BuildPareto(nil, enums.ParetoMetricCount)
		assert.Equal(t, 0, p.Total)
		assert.NotNil(t, p.Items)
		assert.Empty(t, p.Items)
	})
}

func TestService_MTTR(t *testing.T) {
	store := &mocks.StoreMock{
		RepairSamplesFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.RepairSample, error) {
			return []persistence.RepairSample{
				{AssetID: "a1", AssetTag: "P-1", StartedAt: day(1, 8), CompletedAt: day(1, 10)},
				{AssetID: "a2", AssetTag: "P-2", StartedAt: day(2, 8), CompletedAt: day(2, 9)},
				{AssetID: "a1", AssetTag: "P-1", StartedAt: day(3, 8), CompletedAt: day(3, 12)},
				{AssetID: "a2", AssetTag: "P-2", StartedAt: day(4, 8), CompletedAt: day(4, 7)},
			}, nil
		},
	}
	svc := New(store)
	res, err := svc.MTTR(context.Background(), Filter{AssetID: "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Repairs, "negative sample skipped")
	assert.Equal(t, 2*time.Hour+20*time.Minute, res.Overall)
	require.Len(t, res.PerAsset, 2)
	assert.Equal(t, "P-1", res.PerAsset[0].AssetTag)
	assert.Equal(t, 3*time.Hour, res.PerAsset[0].MTTR)
	assert.InDelta(t, 3.0, res.PerAsset[0].Hours, 0.0001)
	assert.Equal(t, 2, res.PerAsset[0].Repairs)
	assert.Equal(t, time.Hour, res.PerAsset[1].MTTR)
	require.Len(t, store.RepairSamplesCalls(), 1)
	assert.Equal(t, "x", store.RepairSamplesCalls()[0].F.AssetID)

	t.Run("no samples", func(t *testing.T) {
		store.RepairSamplesFunc = func(ctx context.Context, f persistence.Filter) ([]persistence.RepairSample, error) {
			return nil, nil
		}
		res, err := svc.MTTR(context.Background(), Filter{})
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), res.Overall)
		assert.Empty(t, res.PerAsset)
	})

	t.Run("store error", func(t *testing.T) {
		store.RepairSamplesFunc = func(ctx context.Context, f persistence.Filter) ([]persistence.RepairSample, error) {
			return nil, errors.New("db gone")
		}
		_, err := svc.MTTR(context.Background(), Filter{})
		require.EqualError(t, err, "db gone")
	})
}

func TestService_MTBF(t *testing.T) {
	now := day(30, 0)
	store := &mocks.StoreMock{
		AssetFailureCountsFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.AssetFailures, error) {
			return []persistence.AssetFailures{
				{AssetID: "a1", AssetTag: "P-1", InServiceAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Failures: 3},
				{AssetID: "a2", AssetTag: "P-2", InServiceAt: day(16, 0), Failures: 2, Downtime: 45},
				{AssetID: "a3", AssetTag: "P-3", CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
	}
	svc := New(store, WithClock(func() time.Time { return now }))

	for _, to := range []time.Time{{}, day(30, 0).AddDate(0, 1, 0)} {
		res, err := svc.MTBF(context.Background(), Filter{From: day(1, 0), To: to})
		require.NoError(t, err)
		require.Len(t, res.PerAsset, 3)

		assert.Equal(t, "P-2", res.PerAsset[0].AssetTag, "in service later than range start")
		assert.Equal(t, 14*24*time.Hour, res.PerAsset[0].Operating)
		assert.Equal(t, 168*time.Hour, res.PerAsset[0].MTBF)
		assert.Equal(t, 45, res.PerAsset[0].Downtime)

		assert.Equal(t, "P-1", res.PerAsset[1].AssetTag)
		assert.Equal(t, 232*time.Hour, res.PerAsset[1].MTBF)
		assert.InDelta(t, 232.0, res.PerAsset[1].Hours, 0.0001)

		assert.Equal(t, "P-3", res.PerAsset[2].AssetTag, "no failures last")
		assert.False(t, res.PerAsset[2].HasMTBF)
		assert.Equal(t, time.Duration(0), res.PerAsset[2].MTBF)
		assert.Equal(t, 29*24*time.Hour, res.PerAsset[2].Operating)

		assert.Equal(t, 5, res.Failures)
		assert.Equal(t, 1728*time.Hour, res.Operating)
		assert.Equal(t, 345*time.Hour+36*time.Minute, res.Overall)
	}
}

func TestService_Trend(t *testing.T) {
	now := day(4, 15) // wednesday
	store := &mocks.StoreMock{
		EventTimesFunc: func(ctx context.Context, series persistence.Series, f persistence.Filter) ([]time.Time, error) {
			switch series {
			case persistence.SeriesFailuresReported:
				return []time.Time{day(1, 10), day(1, 23), day(3, 8)}, nil
			case persistence.SeriesWorkOrdersOpened:
				return []time.Time{day(4, 1)}, nil
			default:
				return nil, nil
			}
		},
	}
	svc := New(store, WithClock(func() time.Time { return now }), WithLocation(time.UTC))

	t.Run("daily with explicit start", func(t *testing.T) {
		res, err := svc.Trend(context.Background(), Filter{From: day(1, 0), Category: "pumps"}, enums.TrendIntervalDay)
		require.NoError(t, err)
		assert.Equal(t, []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-04"}, res.Labels())
		failures, opened, completed := res.Series()
		assert.Equal(t, []float64{2, 0, 1, 0}, failures)
		assert.Equal(t, []float64{0, 0, 0, 1}, opened)
		assert.Equal(t, []float64{0, 0, 0, 0}, completed)

		calls := store.EventTimesCalls()
		require.Len(t, calls, 3)
		assert.Equal(t, day(1, 0), calls[0].F.From)
		assert.Equal(t, now, calls[0].F.To)
		assert.Equal(t, "pumps", calls[0].F.Category)
	})

	t.Run("default weekly span", func(t *testing.T) {
		res, err := svc.Trend(context.Background(), Filter{}, enums.TrendIntervalWeek)
		require.NoError(t, err)
		require.Len(t, res.Points, 12)
		assert.Equal(t, "2025-03-17", res.Points[0].Label)
		assert.Equal(t, "2025-06-02", res.Points[11].Label)
		assert.Equal(t, 1, res.Points[11].Failures, "june 3 is in the last week")
		assert.Equal(t, 2, res.Points[10].Failures, "june 1 is sunday of the previous week")
	})

	t.Run("default monthly span", func(t *testing.T) {
		res, err := svc.Trend(context.Background(), Filter{}, enums.TrendIntervalMonth)
		require.NoError(t, err)
		require.Len(t, res.Points, 12)
		assert.Equal(t, "2024-07", res.Points[0].Label)
		assert.Equal(t, "2025-06", res.Points[11].Label)
		assert.Equal(t, 3, res.Points[11].Failures)
	})

	t.Run("too many points", func(t *testing.T) {
		_, err := svc.Trend(context.Background(), Filter{From: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
			enums.TrendIntervalDay)
		require.ErrorIs(t, err, ErrTooManyPoints)
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := svc.Trend(context.Background(), Filter{}, enums.TrendInterval("hour"))
		require.Error(t, err)
		_, err = svc.Trend(context.Background(), Filter{From: day(5, 0), To: day(2, 0)}, enums.TrendIntervalDay)
		require.Error(t, err)
	})
}

func TestService_BucketStart(t *testing.T) {
	svc := New(&mocks.StoreMock{}, WithLocation(time.UTC))
	assert.Equal(t, time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC), svc.bucketStart(day(1, 13), enums.TrendIntervalWeek))
	assert.Equal(t, day(2, 0), svc.bucketStart(day(2, 0), enums.TrendIntervalWeek))
	assert.Equal(t, day(1, 0), svc.bucketStart(day(17, 5), enums.TrendIntervalMonth))
	assert.Equal(t, day(17, 0), svc.bucketStart(day(17, 5), enums.TrendIntervalDay))

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("no tz database")
	}
	svc = New(&mocks.StoreMock{}, WithLocation(ny))
	start := svc.bucketStart(day(2, 2), enums.TrendIntervalDay) // 22:00 june 1 in new york
	assert.Equal(t, 1, start.Day())
	assert.Equal(t, ny, start.Location())
}

func TestService_StatusCounts(t *testing.T) {
	store := &mocks.StoreMock{
		CountByStatusFunc: func(ctx context.Context, e persistence.Entity, f persistence.Filter) ([]persistence.KeyCount, error) {
			switch e {
			case persistence.EntityWorkOrders:
				return []persistence.KeyCount{{Key: "completed", Count: 1}, {Key: "legacy", Count: 1},
					{Key: "open", Count: 2}}, nil
			case persistence.EntityFailures:
				return []persistence.KeyCount{{Key: "closed", Count: 2}, {Key: "reported", Count: 1}}, nil
			default:
				return []persistence.KeyCount{{Key: "open", Count: 1}, {Key: "verified", Count: 3}}, nil
			}
		},
		CountOverdueFunc: func(ctx context.Context, f persistence.Filter, now time.Time) (int, int, error) {
			return 1, 2, nil
		},
	}
	res, err := New(store).StatusCounts(context.Background(), Filter{})
	require.NoError(t, err)

	require.Len(t, res.WorkOrders, len(enums.WorkOrderStatusValues)+1)
	assert.Equal(t, Count{Status: "open", Title: "Open", Count: 2}, res.WorkOrders[0])
	assert.Equal(t, 0, res.WorkOrders[1].Count)
	assert.Equal(t, "legacy", res.WorkOrders[len(res.WorkOrders)-1].Status, "unknown status kept at the end")
	assert.Len(t, res.Failures, len(enums.FailureStatusValues))
	assert.Len(t, res.Actions, len(enums.ActionStatusValues))

	assert.Equal(t, 2, res.ActiveWorkOrders)
	assert.Equal(t, 1, res.OpenFailures)
	assert.Equal(t, 1, res.OpenActions)
	assert.Equal(t, 1, res.OverdueWorkOrders)
	assert.Equal(t, 2, res.OverdueActions)
	assert.Len(t, store.CountByStatusCalls(), 3)
}

func TestService_SummaryError(t *testing.T) {
	store := &mocks.StoreMock{
		CountByStatusFunc: func(ctx context.Context, e persistence.Entity, f persistence.Filter) ([]persistence.KeyCount, error) {
			return nil, nil
		},
		CountOverdueFunc: func(ctx context.Context, f persistence.Filter, now time.Time) (int, int, error) {
			return 0, 0, nil
		},
		RepairSamplesFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.RepairSample, error) {
			return nil, nil
		},
		AssetFailureCountsFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.AssetFailures, error) {
			return nil, nil
		},
		FailureModeCountsFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.ModeCount, error) {
			return nil, errors.New("locked")
		},
		EventTimesFunc: func(ctx context.Context, series persistence.Series, f persistence.Filter) ([]time.Time, error) {
			return nil, nil
		},
	}
	res, err := New(store, WithConcurrency(2)).Summary(context.Background(), Filter{}, enums.TrendIntervalDay,
		enums.ParetoMetricCount)
	require.NoError(t, err, "one failed part doesn't fail the summary")
	require.Error(t, res.Err(PartPareto))
	assert.Contains(t, res.Err(PartPareto).Error(), "locked")
	assert.Equal(t, map[string]string{PartPareto: res.Err(PartPareto).Error()}, res.Errors)
	for _, part := range []string{PartStatus, PartMTTR, PartMTBF, PartTrend} {
		assert.NoError(t, res.Err(part), part)
	}
	assert.Len(t, res.Status.WorkOrders, len(enums.WorkOrderStatusValues), "status part computed")
	assert.Empty(t, res.Pareto.Items)

	t.Run("all parts failed", func(t *testing.T) {
		failing := &mocks.StoreMock{
			CountByStatusFunc: func(ctx context.Context, e persistence.Entity, f persistence.Filter) ([]persistence.KeyCount, error) {
				return nil, errors.New("locked")
			},
			RepairSamplesFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.RepairSample, error) {
				return nil, errors.New("locked")
			},
			AssetFailureCountsFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.AssetFailures, error) {
				return nil, errors.New("locked")
			},
			FailureModeCountsFunc: func(ctx context.Context, f persistence.Filter) ([]persistence.ModeCount, error) {
				return nil, errors.New("locked")
			},
			EventTimesFunc: func(ctx context.Context, series persistence.Series, f persistence.Filter) ([]time.Time, error) {
				return nil, errors.New("locked")
			},
		}
		res, err := New(failing).Summary(context.Background(), Filter{}, enums.TrendIntervalDay, enums.ParetoMetricCount)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to build summary")
		assert.Contains(t, err.Error(), "trend: ")
		assert.Len(t, res.Errors, 5)
	})
}

func TestService_SummaryWithStore(t *testing.T) {
	ctx := context.Background()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.UpsertFailureMode(ctx, persistence.FailureMode{Code: "LEAK", Name: "Leak"}))
	asset := persistence.Asset{ID: "a1", Tag: "P-1", Name: "pump", Category: "pumps",
		Criticality: enums.CriticalityHigh, InServiceAt: day(1, 0), CreatedAt: day(1, 0)}
	require.NoError(t, store.CreateAsset(ctx, asset))
	require.NoError(t, store.CreateAsset(ctx, persistence.Asset{ID: "a2", Tag: "F-1", Name: "fan", Category: "fans",
		Criticality: enums.CriticalityLow, CreatedAt: day(1, 0)}))

	_, err = store.CreateWorkOrder(ctx, persistence.WorkOrder{ID: "w1", Title: "fix", Type: enums.WorkOrderTypeCorrective,
		Priority: enums.PriorityHigh, Status: enums.WorkOrderStatusCompleted, AssetID: "a1", Resolution: "seal replaced",
		StartedAt: day(10, 8), CompletedAt: day(10, 11), CreatedAt: day(10, 7)}, "", "")
	require.NoError(t, err)
	_, err = store.CreateWorkOrder(ctx, persistence.WorkOrder{ID: "w2", Title: "inspect", Type: enums.WorkOrderTypeInspection,
		Priority: enums.PriorityLow, Status: enums.WorkOrderStatusOpen, AssetID: "a1", DueAt: day(20, 0),
		CreatedAt: day(12, 0)}, "", "")
	require.NoError(t, err)
	_, err = store.CreateFailure(ctx, persistence.FailureReport{ID: "f1", AssetID: "a1", Title: "leak",
		Severity: enums.SeverityMajor, Status: enums.FailureStatusReported, FailureMode: "LEAK", DowntimeMinutes: 30,
		OccurredAt: day(5, 0), CreatedAt: day(5, 0)}, nil, "")
	require.NoError(t, err)
	_, err = store.CreateFailure(ctx, persistence.FailureReport{ID: "f2", AssetID: "a1", Title: "noise",
		Severity: enums.SeverityMinor, Status: enums.FailureStatusReported, DowntimeMinutes: 90,
		OccurredAt: day(20, 0), CreatedAt: day(20, 0)}, nil, "")
	require.NoError(t, err)

	svc := New(store, WithClock(func() time.Time { return day(30, 0) }), WithLocation(time.UTC))
	f := Filter{From: day(1, 0), To: day(30, 0).AddDate(0, 0, 1), Category: "pumps"}
	res, err := svc.Summary(ctx, f, enums.TrendIntervalDay, enums.ParetoMetricCount)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Status.ActiveWorkOrders)
	assert.Equal(t, 1, res.Status.OverdueWorkOrders)
	assert.Equal(t, 2, res.Status.OpenFailures)

	assert.Equal(t, 1, res.MTTR.Repairs)
	assert.Equal(t, 3*time.Hour, res.MTTR.Overall)

	require.Len(t, res.MTBF.PerAsset, 1, "category filter drops the fan")
	assert.Equal(t, 2, res.MTBF.PerAsset[0].Failures)
	assert.Equal(t, 120, res.MTBF.PerAsset[0].Downtime)
	assert.Equal(t, 348*time.Hour, res.MTBF.PerAsset[0].MTBF)

	require.Len(t, res.Pareto.Items, 2)
	assert.Equal(t, "LEAK", res.Pareto.Items[0].Code)
	assert.Equal(t, "Leak", res.Pareto.Items[0].Name)
	assert.Equal(t, Unclassified, res.Pareto.Items[1].Code)

	require.Len(t, res.Trend.Points, 30)
	assert.Equal(t, 1, res.Trend.Points[4].Failures)
	assert.Equal(t, 1, res.Trend.Points[9].Opened)
	assert.Equal(t, 1, res.Trend.Points[9].Completed)
	assert.Equal(t, 1, res.Trend.Points[19].Failures)
}
