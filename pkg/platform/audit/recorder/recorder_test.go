package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"labtrail/pkg/changes"
	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/platform/audit/mocks"
	"labtrail/pkg/platform/audit/store/memory"
	"labtrail/pkg/requestcontext"
)

type staticCollections map[string][]changes.CollectionSpec

func (s staticCollections) CollectionsFor(entityType string) []changes.CollectionSpec {
	return s[entityType]
}

var testsSpec = changes.CollectionSpec{
	Field:           "tests",
	KeyFields:       []string{"id"},
	SignatureFields: []string{"qty", "cost"},
	NameFields:      []string{"name"},
}

func invoiceUpdate() Request {
	return Request{
		EntityType: "Invoice",
		EntityID:   42.0,
		Action:     audit.ActionUpdate,
		Before: map[string]any{
			"payment": map[string]any{"totalAmount": 500},
			"tests":   []any{map[string]any{"id": "t1", "name": "CBC", "qty": 1, "cost": 500}},
		},
		After: map[string]any{
			"payment": map[string]any{"totalAmount": 650},
			"tests": []any{
				map[string]any{"id": "t1", "name": "CBC", "qty": 1, "cost": 500},
				map[string]any{"id": "t2", "name": "LFT", "qty": 1, "cost": 150},
			},
		},
	}
}

// =============================================================================
// Entry construction
// =============================================================================

func TestBuild(t *testing.T) {
	rec := New(memory.NewInMemoryStore(), WithSync(),
		WithCollections(staticCollections{"Invoice": {testsSpec}}))

	t.Run("update carries scalar and collection changes", func(t *testing.T) {
		entry, err := rec.Build(context.Background(), invoiceUpdate())
		require.NoError(t, err)

		assert.Equal(t, "Invoice", entry.EntityType)
		assert.Equal(t, "42", entry.EntityID)
		assert.False(t, entry.ID.IsNil())
		assert.Equal(t, []string{"payment.totalAmount", "tests"}, entry.Diff.Paths())
	})

	t.Run("create and delete carry no diff", func(t *testing.T) {
		for _, action := range []audit.Action{audit.ActionCreate, audit.ActionDelete} {
			req := invoiceUpdate()
			req.Action = action
			entry, err := rec.Build(context.Background(), req)
			require.NoError(t, err)
			assert.Empty(t, entry.Diff, action)
		}
	})

	t.Run("allowlist limits scalar paths", func(t *testing.T) {
		req := invoiceUpdate()
		req.Allowlist = []string{"department"}
		entry, err := rec.Build(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []string{"tests"}, entry.Diff.Paths())
	})

	t.Run("actor comes from context and explicit fields win", func(t *testing.T) {
		ctx := requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
			UserID: "u-ctx", Role: "Receptionist", Name: "Ravi",
		})
		ctx = requestcontext.WithRequestID(ctx, "req-1")
		req := invoiceUpdate()
		req.Actor = audit.Actor{Role: "Admin"}

		entry, err := rec.Build(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, audit.Actor{UserID: "u-ctx", Role: "Admin", Name: "Ravi"}, entry.Actor)
		assert.Equal(t, "req-1", entry.RequestID)
	})

	t.Run("missing actor is allowed", func(t *testing.T) {
		entry, err := rec.Build(context.Background(), invoiceUpdate())
		require.NoError(t, err)
		assert.True(t, entry.Actor.IsZero())
	})

	t.Run("invalid requests are rejected", func(t *testing.T) {
		req := invoiceUpdate()
		req.EntityType = " "
		_, err := rec.Build(context.Background(), req)
		assert.Error(t, err)

		req = invoiceUpdate()
		req.Action = "PATCH"
		_, err = rec.Build(context.Background(), req)
		assert.Error(t, err)
	})
}

func TestStringifyID(t *testing.T) {
	type named string
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" abc ", "abc"},
		{42, "42"},
		{int64(7), "7"},
		{42.0, "42"},
		{1.5, "1.5"},
		{[]byte("p-1"), "p-1"},
		{named("x"), "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StringifyID(tt.in), "%#v", tt.in)
	}
}

// =============================================================================
// Ordering
// =============================================================================

func TestRecord_TimestampsStrictlyIncrease(t *testing.T) {
	frozen := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	rec := New(store, WithSync(), WithClock(func() time.Time { return frozen }))

	ctx := context.Background()
	for range 3 {
		rec.Record(ctx, Request{EntityType: "Patient", EntityID: "p-1", Action: audit.ActionCreate})
	}

	entries, err := store.QueryRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].At.After(entries[1].At))
	assert.True(t, entries[1].At.After(entries[2].At))
}

func TestRecord_ConcurrentTimestampsAreDistinct(t *testing.T) {
	store := memory.NewInMemoryStore()
	rec := New(store, WithSync())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(ctx, Request{EntityType: "Patient", EntityID: 1, Action: audit.ActionCreate})
		}()
	}
	wg.Wait()

	entries, err := store.QueryRecent(ctx, 200)
	require.NoError(t, err)
	require.Len(t, entries, 100)
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		assert.False(t, seen[e.At.UnixNano()], "duplicate timestamp")
		seen[e.At.UnixNano()] = true
	}
}

// =============================================================================
// Failure isolation
// =============================================================================
// The caller of Record must never observe a store failure: no error, no
// panic, no unbounded wait.

type RecorderFailureSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	reg     *prometheus.Registry
	metrics *Metrics
}

func TestRecorderFailureSuite(t *testing.T) {
	suite.Run(t, new(RecorderFailureSuite))
}

func (s *RecorderFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.reg = prometheus.NewRegistry()
	s.metrics = NewMetrics(s.reg)
}

func (s *RecorderFailureSuite) TestStoreErrorIsSwallowed() {
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
	rec := New(s.store, WithSync(), WithMetrics(s.metrics))

	s.NotPanics(func() { rec.Record(context.Background(), invoiceUpdate()) })
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PersistFailures))
	s.Equal(0.0, promtest.ToFloat64(s.metrics.Recorded))
}

func (s *RecorderFailureSuite) TestStorePanicIsRecovered() {
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, audit.Entry) error { panic("driver bug") },
	)
	rec := New(s.store, WithSync(), WithMetrics(s.metrics))

	s.NotPanics(func() { rec.Record(context.Background(), invoiceUpdate()) })
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PersistFailures))
}

func (s *RecorderFailureSuite) TestSlowStoreIsBoundedByTimeout() {
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ audit.Entry) error {
			<-ctx.Done()
			return ctx.Err()
		},
	)
	rec := New(s.store, WithSync(), WithAppendTimeout(20*time.Millisecond))

	start := time.Now()
	rec.Record(context.Background(), invoiceUpdate())
	s.Less(time.Since(start), time.Second)
}

func (s *RecorderFailureSuite) TestCallerCancellationDoesNotAbortAppend() {
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ audit.Entry) error {
			return ctx.Err()
		},
	)
	rec := New(s.store, WithSync(), WithMetrics(s.metrics))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, invoiceUpdate())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Recorded))
}

func (s *RecorderFailureSuite) TestAsyncRecordDoesNotWaitForStore() {
	release := make(chan struct{})
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, audit.Entry) error {
			<-release
			return nil
		},
	).AnyTimes()
	rec := New(s.store, WithAppendTimeout(5*time.Second))
	go func() { _ = rec.Run(context.Background()) }()

	start := time.Now()
	for range 5 {
		rec.Record(context.Background(), invoiceUpdate())
	}
	s.Less(time.Since(start), 500*time.Millisecond)

	close(release)
	s.Require().NoError(rec.Close(context.Background()))
}

func (s *RecorderFailureSuite) TestFullBufferDrops() {
	rec := New(s.store, WithAsyncBuffer(1), WithMetrics(s.metrics))
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	rec.Record(context.Background(), invoiceUpdate())
	rec.Record(context.Background(), invoiceUpdate())

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Dropped.WithLabelValues(DropBufferFull)))
	s.Require().NoError(rec.Close(context.Background()))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Recorded))
}

func (s *RecorderFailureSuite) TestCircuitOpensAfterRepeatedFailures() {
	s.store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(2)
	rec := New(s.store, WithSync(), WithMetrics(s.metrics),
		WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)))

	for range 4 {
		rec.Record(context.Background(), invoiceUpdate())
	}

	s.Equal(2.0, promtest.ToFloat64(s.metrics.Dropped.WithLabelValues(DropCircuitOpen)))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.CircuitBreakerState))
}

func (s *RecorderFailureSuite) TestInvalidRequestNeverReachesStore() {
	rec := New(s.store, WithSync(), WithMetrics(s.metrics))

	rec.Record(context.Background(), Request{EntityType: "", Action: audit.ActionCreate})
	s.Equal(1.0, promtest.ToFloat64(s.metrics.BuildFailures))
}

func TestRecord_CallerMetaIsCopied(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []struct {
		name string
		opts []Option
	}{
		{"sync", []Option{WithSync()}},
		{"async", []Option{WithAsyncBuffer(8)}},
	} {
		t.Run(mode.name, func(t *testing.T) {
			store := memory.NewInMemoryStore()
			rec := New(store, mode.opts...)
			done := make(chan error, 1)
			go func() { done <- rec.Run(ctx) }()

			meta := map[string]any{
				"receipt": "R-1",
				"payment": map[string]any{"mode": "cash"},
			}
			req := invoiceUpdate()
			req.Meta = meta
			rec.Record(ctx, req)

			meta["receipt"] = "R-2"
			meta["payment"].(map[string]any)["mode"] = "card"

			require.NoError(t, rec.Close(ctx))
			require.NoError(t, <-done)

			recent, err := store.QueryRecent(ctx, 1)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, "R-1", recent[0].Meta["receipt"])
			assert.Equal(t, map[string]any{"mode": "cash"}, recent[0].Meta["payment"])
		})
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	store := memory.NewInMemoryStore()
	rec := New(store, WithAsyncBuffer(64))

	done := make(chan error, 1)
	go func() { done <- rec.Run(context.Background()) }()

	for range 20 {
		rec.Record(context.Background(), Request{EntityType: "Report", EntityID: "r-1", Action: audit.ActionCreate})
	}
	require.NoError(t, rec.Close(context.Background()))
	require.NoError(t, <-done)

	entries, err := store.QueryRecent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	rec := New(store, WithMetrics(metrics))

	require.NoError(t, rec.Close(context.Background()))
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), Request{EntityType: "Report", EntityID: "r-1", Action: audit.ActionCreate})
	})
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Dropped.WithLabelValues(DropClosed)))
	require.NoError(t, rec.Close(context.Background()))
}

func TestRecorder_SyncModeRunIsNoop(t *testing.T) {
	rec := New(memory.NewInMemoryStore(), WithSync())
	assert.NoError(t, rec.Run(context.Background()))
	assert.NoError(t, rec.Close(context.Background()))
}
