package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/umputun/fracas/app/enums"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func seedAsset(t *testing.T, s *SQLiteStore, tag string) Asset {
	t.Helper()
	a := Asset{ID: uuid.NewString(), Tag: tag, Name: "asset " + tag, Category: "pumps", Location: "plant 1",
		Criticality: enums.CriticalityHigh}
	require.NoError(t, s.CreateAsset(context.Background(), a))
	res, err := s.GetAsset(context.Background(), a.ID)
	require.NoError(t, err)
	return res
}

func seedUser(t *testing.T, s *SQLiteStore, name string) User {
	t.Helper()
	u := User{ID: uuid.NewString(), Name: name, Email: name + "@example.com", Role: enums.RoleTechnician, Active: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newWorkOrder(assetID string) WorkOrder {
	return WorkOrder{ID: uuid.NewString(), Title: "fix leak", Type: enums.WorkOrderTypeCorrective,
		Priority: enums.PriorityMedium, Status: enums.WorkOrderStatusOpen, AssetID: assetID}
}

func TestNewSQLiteStore(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		assert.NotNil(t, store)
		require.NoError(t, store.Close())
	})

	t.Run("invalid path", func(t *testing.T) {
		store, err := NewSQLiteStore("/invalid/path/that/does/not/exist/test.db")
		require.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("reopen keeps data", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		store, err := NewSQLiteStore(dbPath)
		require.NoError(t, err)
		require.NoError(t, store.CreateAsset(context.Background(), Asset{ID: "a1", Tag: "P-1", Name: "pump",
			Criticality: enums.CriticalityLow}))
		require.NoError(t, store.Close())

		store, err = NewSQLiteStore(dbPath)
		require.NoError(t, err)
		defer store.Close()
		a, err := store.GetAssetByTag(context.Background(), "P-1")
		require.NoError(t, err)
		assert.Equal(t, "a1", a.ID)
		assert.Equal(t, dbPath, store.Path())
	})
}

func TestSQLiteStore_Schema(t *testing.T) {
	store := newTestStore(t)

	for _, table := range []string{"users", "failure_modes", "failure_causes", "assets", "work_orders",
		"work_order_events", "failure_reports", "corrective_actions"} {
		var count int
		err := store.db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}

	var mode string
	require.NoError(t, store.db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, store.db.Get(&fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)

	assert.Equal(t, 1, store.db.Stats().MaxOpenConnections)

	// initialize is idempotent
	require.NoError(t, store.Initialize())
}

func TestSQLiteStore_ForeignKeys(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateWorkOrder(context.Background(), newWorkOrder("no-such-asset"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestSQLiteStore_Users(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bob := seedUser(t, store, "bob")
	alice := seedUser(t, store, "alice")
	require.NoError(t, store.CreateUser(ctx, User{ID: "u3", Name: "zed", Role: enums.RoleViewer, Active: false}))

	t.Run("get", func(t *testing.T) {
		u, err := store.GetUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, "bob", u.Name)
		assert.Equal(t, "bob@example.com", u.Email)
		assert.Equal(t, enums.RoleTechnician, u.Role)
		assert.True(t, u.Active)
		assert.False(t, u.CreatedAt.IsZero())

		_, err = store.GetUser(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all, err := store.ListUsers(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"alice", "bob", "zed"}, []string{all[0].Name, all[1].Name, all[2].Name})

		active, err := store.ListUsers(ctx, true)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := store.CreateUser(ctx, User{ID: "u4", Name: "alice2", Email: alice.Email, Role: enums.RoleEngineer})
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("upsert by email keeps id", func(t *testing.T) {
		id, err := store.UpsertUser(ctx, User{ID: "other", Name: "Alice Smith", Email: alice.Email,
			Role: enums.RoleSupervisor, Active: true})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, id)
		u, err := store.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice Smith", u.Name)
		assert.Equal(t, enums.RoleSupervisor, u.Role)
	})
}

func TestSQLiteStore_Lookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFailureMode(ctx, FailureMode{Code: "SEAL", Name: "Seal leak", Category: "mechanical"}))
	require.NoError(t, store.UpsertFailureMode(ctx, FailureMode{Code: "BRG", Name: "Bearing", Category: "mechanical"}))
	require.NoError(t, store.UpsertFailureMode(ctx, FailureMode{Code: "SEAL", Name: "Seal failure", Category: "mechanical"}))
	require.NoError(t, store.UpsertFailureCause(ctx, FailureCause{Code: "WEAR", Name: "Wear"}))

	modes, err := store.ListFailureModes(ctx)
	require.NoError(t, err)
	require.Len(t, modes, 2)
	assert.Equal(t, "BRG", modes[0].Code)
	assert.Equal(t, "Seal failure", modes[1].Name)

	causes, err := store.ListFailureCauses(ctx)
	require.NoError(t, err)
	assert.Len(t, causes, 1)

	m, err := store.GetFailureMode(ctx, "SEAL")
	require.NoError(t, err)
	assert.Equal(t, "Seal failure", m.Name)
	_, err = store.GetFailureMode(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	c, err := store.GetFailureCause(ctx, "WEAR")
	require.NoError(t, err)
	assert.Equal(t, "Wear", c.Name)
	_, err = store.GetFailureCause(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Assets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inService := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateAsset(ctx, Asset{ID: "a1", Tag: "P-101", Name: "Feed pump", Category: "pumps",
		Location: "line 1", Criticality: enums.CriticalityHigh, PMSchedule: "0 6 * * 1", InServiceAt: inService}))
	require.NoError(t, store.CreateAsset(ctx, Asset{ID: "a2", Tag: "C-201", Name: "Conveyor", Category: "conveyors",
		Criticality: enums.CriticalityLow}))

	t.Run("duplicate tag", func(t *testing.T) {
		err := store.CreateAsset(ctx, Asset{ID: "a3", Tag: "P-101", Name: "x", Criticality: enums.CriticalityLow})
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("get", func(t *testing.T) {
		a, err := store.GetAsset(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "P-101", a.Tag)
		assert.Equal(t, "0 6 * * 1", a.PMSchedule)
		assert.True(t, inService.Equal(a.InServiceAt))

		a, err = store.GetAsset(ctx, "a2")
		require.NoError(t, err)
		assert.True(t, a.InServiceAt.IsZero())

		_, err = store.GetAssetByTag(ctx, "X-1")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all, err := store.ListAssets(ctx, AssetQuery{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "C-201", all[0].Tag)

		pumps, err := store.ListAssets(ctx, AssetQuery{Category: "pumps"})
		require.NoError(t, err)
		require.Len(t, pumps, 1)

		found, err := store.ListAssets(ctx, AssetQuery{Search: "convey"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "a2", found[0].ID)

		scheduled, err := store.ListAssets(ctx, AssetQuery{Scheduled: true})
		require.NoError(t, err)
		require.Len(t, scheduled, 1)
		assert.Equal(t, "a1", scheduled[0].ID)

		cats, err := store.AssetCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"conveyors", "pumps"}, cats)
	})

	t.Run("upsert by tag", func(t *testing.T) {
		id, err := store.UpsertAsset(ctx, Asset{ID: "new-id", Tag: "P-101", Name: "Feed pump A", Category: "pumps",
			Criticality: enums.CriticalityMedium})
		require.NoError(t, err)
		assert.Equal(t, "a1", id)
		a, err := store.GetAsset(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "Feed pump A", a.Name)
		assert.Equal(t, enums.CriticalityMedium, a.Criticality)

		id, err = store.UpsertAsset(ctx, Asset{ID: "a9", Tag: "F-900", Name: "Fan", Criticality: enums.CriticalityLow})
		require.NoError(t, err)
		assert.Equal(t, "a9", id)
	})
}

func TestSQLiteStore_WorkOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	asset := seedAsset(t, store, "P-1")
	other := seedAsset(t, store, "P-2")
	tech := seedUser(t, store, "tech")

	wo1, err := store.CreateWorkOrder(ctx, newWorkOrder(asset.ID), tech.ID, "created")
	require.NoError(t, err)
	wo2 := newWorkOrder(other.ID)
	wo2.Title = "inspect belt"
	wo2.Type = enums.WorkOrderTypeInspection
	wo2.Priority = enums.PriorityCritical
	wo2.DueAt = time.Now().Add(-time.Hour)
	wo2.AssigneeID = tech.ID
	wo2, err = store.CreateWorkOrder(ctx, wo2, "", "")
	require.NoError(t, err)

	t.Run("sequential numbers", func(t *testing.T) {
		assert.Equal(t, int64(1), wo1.Number)
		assert.Equal(t, int64(2), wo2.Number)
		assert.Equal(t, "WO-000002", wo2.Ref())
	})

	t.Run("get with joins", func(t *testing.T) {
		wo, err := store.GetWorkOrder(ctx, wo2.ID)
		require.NoError(t, err)
		assert.Equal(t, "P-2", wo.AssetTag)
		assert.Equal(t, "asset P-2", wo.AssetName)
		assert.Equal(t, "tech", wo.AssigneeName)
		assert.Equal(t, enums.WorkOrderStatusOpen, wo.Status)
		assert.True(t, wo.Overdue(time.Now()))

		_, err = store.GetWorkOrder(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("initial event", func(t *testing.T) {
		events, err := store.WorkOrderEvents(ctx, wo1.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, enums.WorkOrderStatus(""), events[0].FromStatus)
		assert.Equal(t, enums.WorkOrderStatusOpen, events[0].ToStatus)
		assert.Equal(t, "tech", events[0].ActorName)
		assert.Equal(t, "created", events[0].Note)
	})

	t.Run("list filters", func(t *testing.T) {
		tests := []struct {
			name string
			q    WorkOrderQuery
			want []int64
		}{
			{"all newest first", WorkOrderQuery{}, []int64{2, 1}},
			{"oldest", WorkOrderQuery{Sort: SortOldest}, []int64{1, 2}},
			{"priority", WorkOrderQuery{Sort: SortPriority}, []int64{2, 1}},
			{"by asset", WorkOrderQuery{AssetID: asset.ID}, []int64{1}},
			{"by type", WorkOrderQuery{Type: enums.WorkOrderTypeInspection}, []int64{2}},
			{"by priority", WorkOrderQuery{Priority: enums.PriorityMedium}, []int64{1}},
			{"by assignee", WorkOrderQuery{AssigneeID: tech.ID}, []int64{2}},
			{"by status", WorkOrderQuery{Statuses: []enums.WorkOrderStatus{enums.WorkOrderStatusOpen,
				enums.WorkOrderStatusClosed}}, []int64{2, 1}},
			{"by missing status", WorkOrderQuery{Statuses: []enums.WorkOrderStatus{enums.WorkOrderStatusClosed}}, []int64{}},
			{"search title", WorkOrderQuery{Search: "belt"}, []int64{2}},
			{"search tag", WorkOrderQuery{Search: "P-1"}, []int64{1}},
			{"overdue", WorkOrderQuery{OverdueAt: time.Now()}, []int64{2}},
			{"limit", WorkOrderQuery{Limit: 1}, []int64{2}},
			{"limit offset", WorkOrderQuery{Limit: 1, Offset: 1}, []int64{1}},
			{"unknown sort", WorkOrderQuery{Sort: "drop table"}, []int64{2, 1}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, err := store.ListWorkOrders(ctx, tt.q)
				require.NoError(t, err)
				nums := make([]int64, 0, len(res))
				for _, wo := range res {
					nums = append(nums, wo.Number)
				}
				assert.Equal(t, tt.want, nums)
			})
		}
	})

	t.Run("update with event", func(t *testing.T) {
		wo := wo1
		wo.Status = enums.WorkOrderStatusInProgress
		wo.StartedAt = time.Now().Truncate(time.Second)
		err := store.UpdateWorkOrder(ctx, wo, enums.WorkOrderStatusOpen, WorkOrderEvent{
			FromStatus: enums.WorkOrderStatusOpen, ToStatus: enums.WorkOrderStatusInProgress, ActorID: tech.ID})
		require.NoError(t, err)

		got, err := store.GetWorkOrder(ctx, wo1.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.WorkOrderStatusInProgress, got.Status)
		assert.True(t, wo.StartedAt.Equal(got.StartedAt))

		events, err := store.WorkOrderEvents(ctx, wo1.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, enums.WorkOrderStatusOpen, events[1].FromStatus)
		assert.Equal(t, enums.WorkOrderStatusInProgress, events[1].ToStatus)
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		wo := wo1
		wo.Status = enums.WorkOrderStatusCancelled
		err := store.UpdateWorkOrder(ctx, wo, enums.WorkOrderStatusOpen, WorkOrderEvent{ToStatus: wo.Status})
		require.ErrorIs(t, err, ErrConflict)

		events, err := store.WorkOrderEvents(ctx, wo1.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2, "no event on failed update")
	})

	t.Run("update missing", func(t *testing.T) {
		wo := newWorkOrder(asset.ID)
		err := store.UpdateWorkOrder(ctx, wo, enums.WorkOrderStatusOpen, WorkOrderEvent{})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("last completed", func(t *testing.T) {
		ts, err := store.LastCompletedAt(ctx, asset.ID, enums.WorkOrderTypePreventive)
		require.NoError(t, err)
		assert.True(t, ts.IsZero())

		done := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		pm := newWorkOrder(asset.ID)
		pm.Type = enums.WorkOrderTypePreventive
		pm.Status = enums.WorkOrderStatusClosed
		pm.StartedAt = done.Add(-time.Hour)
		pm.CompletedAt = done
		_, err = store.CreateWorkOrder(ctx, pm, "", "")
		require.NoError(t, err)

		ts, err = store.LastCompletedAt(ctx, asset.ID, enums.WorkOrderTypePreventive)
		require.NoError(t, err)
		assert.True(t, done.Equal(ts))
	})
}

func TestSQLiteStore_FailuresAndActions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	asset := seedAsset(t, store, "P-1")
	require.NoError(t, store.UpsertFailureMode(ctx, FailureMode{Code: "SEAL", Name: "Seal leak"}))

	occurred := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	fr := FailureReport{ID: uuid.NewString(), AssetID: asset.ID, Title: "leaking seal", Severity: enums.SeverityMajor,
		Status: enums.FailureStatusReported, OccurredAt: occurred, DowntimeMinutes: 90}
	linked := newWorkOrder(asset.ID)
	linked.Priority = enums.PriorityHigh

	fr, err := store.CreateFailure(ctx, fr, &linked, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fr.Number)
	assert.Equal(t, "FR-000001", fr.Ref())
	assert.Equal(t, fr.ID, linked.FailureID)
	assert.Equal(t, int64(1), linked.Number)

	t.Run("linked work order", func(t *testing.T) {
		wos, err := store.ListWorkOrders(ctx, WorkOrderQuery{FailureID: fr.ID})
		require.NoError(t, err)
		require.Len(t, wos, 1)
		assert.Equal(t, int64(1), wos[0].FailureNumber)
		events, err := store.WorkOrderEvents(ctx, linked.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "opened for FR-000001", events[0].Note)
	})

	t.Run("without linked work order", func(t *testing.T) {
		f2 := FailureReport{ID: uuid.NewString(), AssetID: asset.ID, Title: "noise", Severity: enums.SeverityMinor,
			Status: enums.FailureStatusReported, OccurredAt: occurred.Add(time.Hour)}
		f2, err := store.CreateFailure(ctx, f2, nil, "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), f2.Number)
	})

	t.Run("get and list", func(t *testing.T) {
		got, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		assert.Equal(t, "P-1", got.AssetTag)
		assert.True(t, occurred.Equal(got.OccurredAt))
		assert.Equal(t, 90, got.DowntimeMinutes)
		assert.False(t, got.Analyzed())

		_, err = store.GetFailure(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)

		all, err := store.ListFailures(ctx, FailureQuery{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "noise", all[0].Title)

		major, err := store.ListFailures(ctx, FailureQuery{Severity: enums.SeverityMajor})
		require.NoError(t, err)
		require.Len(t, major, 1)

		found, err := store.ListFailures(ctx, FailureQuery{Search: "seal", OpenOnly: true,
			Statuses: []enums.FailureStatus{enums.FailureStatusReported}})
		require.NoError(t, err)
		require.Len(t, found, 1)
	})

	t.Run("record analysis", func(t *testing.T) {
		f := fr
		f.Status = enums.FailureStatusAnalyzing
		f.FailureMode = "SEAL"
		f.RootCause = "worn lip"
		require.NoError(t, store.UpdateFailure(ctx, f, enums.FailureStatusReported))
		got, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Seal leak", got.ModeName)
		assert.True(t, got.Analyzed())

		require.ErrorIs(t, store.UpdateFailure(ctx, f, enums.FailureStatusReported), ErrConflict)

		byMode, err := store.ListFailures(ctx, FailureQuery{FailureMode: "SEAL"})
		require.NoError(t, err)
		assert.Len(t, byMode, 1)
	})

	t.Run("actions", func(t *testing.T) {
		a := CorrectiveAction{ID: uuid.NewString(), FailureID: fr.ID, Description: "replace seal",
			Status: enums.ActionStatusOpen, DueAt: time.Now().Add(-time.Hour)}
		require.NoError(t, store.CreateAction(ctx, a, enums.FailureStatusAnalyzing, enums.FailureStatusCorrectiveAction))

		got, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.FailureStatusCorrectiveAction, got.Status)

		a2 := CorrectiveAction{ID: uuid.NewString(), FailureID: fr.ID, Description: "train staff",
			Status: enums.ActionStatusOpen}
		require.NoError(t, store.CreateAction(ctx, a2, "", ""))

		acts, err := store.ListActions(ctx, ActionQuery{FailureID: fr.ID})
		require.NoError(t, err)
		require.Len(t, acts, 2)
		assert.Equal(t, "replace seal", acts[0].Description, "dated actions first")
		assert.Equal(t, int64(1), acts[0].FailureNumber)

		overdue, err := store.ListActions(ctx, ActionQuery{OverdueAt: time.Now()})
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.True(t, overdue[0].Overdue(time.Now()))

		upd := acts[1]
		upd.Status = enums.ActionStatusCancelled
		require.NoError(t, store.UpdateAction(ctx, upd, enums.ActionStatusOpen))
		require.ErrorIs(t, store.UpdateAction(ctx, upd, enums.ActionStatusOpen), ErrConflict)

		open, err := store.ListActions(ctx, ActionQuery{OpenOnly: true})
		require.NoError(t, err)
		assert.Len(t, open, 1)

		cancelled, err := store.ListActions(ctx, ActionQuery{Statuses: []enums.ActionStatus{enums.ActionStatusCancelled}})
		require.NoError(t, err)
		require.Len(t, cancelled, 1)
		g, err := store.GetAction(ctx, cancelled[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "train staff", g.Description)

		_, err = store.GetAction(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("advance skipped when already advanced", func(t *testing.T) {
		a := CorrectiveAction{ID: uuid.NewString(), FailureID: fr.ID, Description: "late", Status: enums.ActionStatusCancelled}
		require.NoError(t, store.CreateAction(ctx, a, enums.FailureStatusAnalyzing, enums.FailureStatusCorrectiveAction))
		got, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.FailureStatusCorrectiveAction, got.Status)

		err = store.CreateAction(ctx, CorrectiveAction{ID: uuid.NewString(), FailureID: "nope", Description: "x",
			Status: enums.ActionStatusOpen}, "", "")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("close refused with pending actions", func(t *testing.T) {
		f, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		f.Status, f.ClosedAt = enums.FailureStatusClosed, time.Now()
		err = store.UpdateFailure(ctx, f, enums.FailureStatusCorrectiveAction)
		require.ErrorIs(t, err, ErrPendingActions)

		got, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.FailureStatusCorrectiveAction, got.Status)
		assert.True(t, got.ClosedAt.IsZero())
	})

	t.Run("action refused on closed failure", func(t *testing.T) {
		pending, err := store.ListActions(ctx, ActionQuery{FailureID: fr.ID, OpenOnly: true})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		a := pending[0]
		a.Status = enums.ActionStatusVerified
		require.NoError(t, store.UpdateAction(ctx, a, enums.ActionStatusOpen))

		f, err := store.GetFailure(ctx, fr.ID)
		require.NoError(t, err)
		f.Status, f.ClosedAt = enums.FailureStatusClosed, time.Now()
		require.NoError(t, store.UpdateFailure(ctx, f, enums.FailureStatusCorrectiveAction))
		require.ErrorIs(t, store.UpdateFailure(ctx, f, enums.FailureStatusCorrectiveAction), ErrConflict)

		late := CorrectiveAction{ID: uuid.NewString(), FailureID: fr.ID, Description: "too late", Status: enums.ActionStatusOpen}
		require.ErrorIs(t, store.CreateAction(ctx, late, "", ""), ErrFailureClosed)
		_, err = store.GetAction(ctx, late.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

type retrierFunc func(ctx context.Context, fun func() error, errs ...error) error

func (r retrierFunc) Do(ctx context.Context, fun func() error, errs ...error) error { return r(ctx, fun, errs...) }

func TestSQLiteStore_WithRetry(t *testing.T) {
	calls := 0
	// retries up to 3 times unless a terminal error is returned
	retrier := retrierFunc(func(_ context.Context, fun func() error, errs ...error) error {
		var err error
		for range 3 {
			calls++
			if err = fun(); err == nil {
				return nil
			}
			for _, e := range errs {
				if errors.Is(err, e) {
					return err
				}
			}
		}
		return err
	})

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), WithRetry(retrier))
	require.NoError(t, err)
	defer store.Close()

	t.Run("busy error retried", func(t *testing.T) {
		calls = 0
		attempts := 0
		err := store.withRetry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other error not retried", func(t *testing.T) {
		calls = 0
		err := store.withRetry(context.Background(), func() error { return errors.New("syntax error") })
		require.EqualError(t, err, "syntax error")
		assert.Equal(t, 1, calls)
	})

	t.Run("busy error exhausted", func(t *testing.T) {
		calls = 0
		err := store.withRetry(context.Background(), func() error { return errors.New("database is locked") })
		require.EqualError(t, err, "database is locked")
		assert.Equal(t, 3, calls)
	})
}
