package service

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"recharge-sync/db/model"
	"recharge-sync/partner"
)

type fakeFetcher struct {
	batchSize int
	items     []partner.Item
	err       error

	fetchCalls  int
	batchCalls  int
	directCalls int
	lastUserIds string
	lastToken   string
}

func (f *fakeFetcher) Fetch(ctx context.Context, userIds string) ([]partner.Item, error) {
	f.fetchCalls++
	f.lastUserIds = userIds
	return f.items, f.err
}

func (f *fakeFetcher) FetchWithToken(ctx context.Context, userIds string, token string) ([]partner.Item, error) {
	f.directCalls++
	f.lastUserIds = userIds
	f.lastToken = token
	return f.items, f.err
}

func (f *fakeFetcher) BatchFetch(ctx context.Context, uids []int64) ([]partner.Item, error) {
	f.batchCalls++
	return f.items, f.err
}

func (f *fakeFetcher) BatchSize() int {
	if f.batchSize > 0 {
		return f.batchSize
	}
	return 100
}

func newTestSyncer(t *testing.T, fetcher *fakeFetcher) (*Syncer, *Store) {
	t.Helper()
	store := NewStore(openTestDB(t))
	return NewSyncer(fetcher, store), store
}

func TestSyncCountsCoverEveryRequestedUID(t *testing.T) {
	fetcher := &fakeFetcher{items: []partner.Item{testItem(100), testItem(300)}}
	syncer, store := newTestSyncer(t, fetcher)
	ctx := context.Background()

	out, err := syncer.Sync(ctx, "100,200,300")
	if err != nil {
		t.Fatal(err)
	}

	if out.SyncedCount != 2 || out.FailedCount != 1 {
		t.Fatalf("counts wrong: %+v", out)
	}
	if out.SyncedCount+out.FailedCount != 3 {
		t.Fatalf("synced+failed must equal attempted uids: %+v", out)
	}

	for _, uid := range []int64{100, 300} {
		rec, gerr := store.GetByUID(ctx, uid)
		if gerr != nil {
			t.Fatal(gerr)
		}
		if rec.SyncStatus != model.SyncStatusSuccess {
			t.Fatalf("uid %d should be success: %+v", uid, rec)
		}
	}

	// uid absent from the upstream response is recorded as failed
	rec, gerr := store.GetByUID(ctx, 200)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if rec.SyncStatus != model.SyncStatusFailed || rec.SyncError != msgNoUpstreamData {
		t.Fatalf("missing uid handling wrong: %+v", rec)
	}
}

func TestSyncRejectsBadInput(t *testing.T) {
	fetcher := &fakeFetcher{}
	syncer, _ := newTestSyncer(t, fetcher)

	for _, input := range []string{"", "  ", "abc", "1,abc"} {
		_, err := syncer.Sync(context.Background(), input)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("input %q: expected ValidationError, got %v", input, err)
		}
	}
	if fetcher.fetchCalls != 0 || fetcher.batchCalls != 0 {
		t.Fatal("validation must reject before any network call")
	}
}

func TestSyncTotalFailureMarksEveryUID(t *testing.T) {
	fetcher := &fakeFetcher{}
	syncer, store := newTestSyncer(t, fetcher)
	ctx := context.Background()

	// seed one uid with good data first
	fetcher.items = []partner.Item{testItem(1)}
	if _, err := syncer.Sync(ctx, "1"); err != nil {
		t.Fatal(err)
	}

	fetcher.items = nil
	fetcher.err = errors.New("partner down")

	out, err := syncer.Sync(ctx, "1,2,3")
	if err != nil {
		t.Fatal(err)
	}
	if out.Success || out.SyncedCount != 0 || out.FailedCount != 3 {
		t.Fatalf("outage outcome wrong: %+v", out)
	}
	if out.Message == "" {
		t.Fatal("outage must carry a top-level failure message")
	}

	rec, gerr := store.GetByUID(ctx, 1)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if rec.SyncStatus != model.SyncStatusFailed || rec.SyncError != "partner down" {
		t.Fatalf("existing record not marked failed: %+v", rec)
	}
	// last-known-good monetary data survives
	if rec.TotalRecharge != 100 {
		t.Fatalf("monetary data lost on failure: %+v", rec)
	}

	for _, uid := range []int64{2, 3} {
		if _, gerr = store.GetByUID(ctx, uid); gerr != nil {
			t.Fatalf("uid %d should have a failed record: %v", uid, gerr)
		}
	}
}

func TestSyncIdempotentOnUnchangedData(t *testing.T) {
	fetcher := &fakeFetcher{items: []partner.Item{testItem(7)}}
	syncer, store := newTestSyncer(t, fetcher)
	ctx := context.Background()

	if _, err := syncer.Sync(ctx, "7"); err != nil {
		t.Fatal(err)
	}
	first, _ := store.GetByUID(ctx, 7)

	if _, err := syncer.Sync(ctx, "7"); err != nil {
		t.Fatal(err)
	}
	second, _ := store.GetByUID(ctx, 7)

	if second.ID != first.ID {
		t.Fatal("resync must update in place, not recreate")
	}
	if second.TotalRecharge != first.TotalRecharge || second.Day30Coin != first.Day30Coin {
		t.Fatalf("record changed despite unchanged upstream data: %+v vs %+v", first, second)
	}
	if second.LastSyncAt.Before(first.LastSyncAt) {
		t.Fatalf("lastSyncAt must not go backwards: %v -> %v", first.LastSyncAt, second.LastSyncAt)
	}
}

func TestSyncDedupsRequestedUIDs(t *testing.T) {
	fetcher := &fakeFetcher{items: []partner.Item{testItem(5)}}
	syncer, _ := newTestSyncer(t, fetcher)

	out, err := syncer.Sync(context.Background(), "5,5,5")
	if err != nil {
		t.Fatal(err)
	}
	if fetcher.lastUserIds != "5" {
		t.Fatalf("duplicates not collapsed: %q", fetcher.lastUserIds)
	}
	if out.SyncedCount != 1 || out.FailedCount != 0 {
		t.Fatalf("counts wrong for deduped input: %+v", out)
	}
}

func TestSyncLargeInputGoesThroughBatchFetch(t *testing.T) {
	fetcher := &fakeFetcher{batchSize: 2, items: []partner.Item{testItem(1), testItem(2), testItem(3)}}
	syncer, _ := newTestSyncer(t, fetcher)

	out, err := syncer.Sync(context.Background(), "1,2,3")
	if err != nil {
		t.Fatal(err)
	}
	if fetcher.batchCalls != 1 || fetcher.fetchCalls != 0 {
		t.Fatalf("expected batched path: batch=%d fetch=%d", fetcher.batchCalls, fetcher.fetchCalls)
	}
	if out.SyncedCount != 3 {
		t.Fatalf("outcome wrong: %+v", out)
	}
}

func TestBatchSync(t *testing.T) {
	fetcher := &fakeFetcher{items: []partner.Item{testItem(1), testItem(2)}}
	syncer, _ := newTestSyncer(t, fetcher)

	out, err := syncer.BatchSync(context.Background(), []int64{1, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	if fetcher.batchCalls != 1 {
		t.Fatalf("batch sync must use BatchFetch, got %d calls", fetcher.batchCalls)
	}
	if out.SyncedCount != 2 || out.FailedCount != 0 {
		t.Fatalf("counts wrong: %+v", out)
	}

	_, err = syncer.BatchSync(context.Background(), nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("empty batch must be rejected, got %v", err)
	}
}

func TestResync(t *testing.T) {
	fetcher := &fakeFetcher{items: []partner.Item{testItem(42)}}
	syncer, store := newTestSyncer(t, fetcher)

	out, err := syncer.Resync(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if out.SyncedCount != 1 {
		t.Fatalf("resync outcome wrong: %+v", out)
	}
	if _, err = store.GetByUID(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
}

func TestSyncDirect(t *testing.T) {
	fetcher := &fakeFetcher{items: []partner.Item{testItem(9)}}
	syncer, store := newTestSyncer(t, fetcher)
	ctx := context.Background()

	_, err := syncer.SyncDirect(ctx, "9", "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("empty token must be rejected, got %v", err)
	}

	out, err := syncer.SyncDirect(ctx, "9", "manual-token")
	if err != nil {
		t.Fatal(err)
	}
	if fetcher.directCalls != 1 || fetcher.lastToken != "manual-token" {
		t.Fatalf("direct fetch not used: %+v", fetcher)
	}
	if out.SyncedCount != 1 {
		t.Fatalf("outcome wrong: %+v", out)
	}
	if _, err = store.GetByUID(ctx, 9); err != nil {
		t.Fatal(err)
	}
}

func TestSyncDirectFailureLeavesRecordsAlone(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("token rejected")}
	syncer, store := newTestSyncer(t, fetcher)
	ctx := context.Background()

	out, err := syncer.SyncDirect(ctx, "77", "bad")
	if err != nil {
		t.Fatal(err)
	}
	if out.Success || out.FailedCount != 1 {
		t.Fatalf("direct failure outcome wrong: %+v", out)
	}

	// the debug path reports the failure but does not touch the store
	if _, gerr := store.GetByUID(ctx, 77); gerr == nil {
		t.Fatal("direct sync failure must not create records")
	}
}

func TestRetryTaskResyncsFailedRecords(t *testing.T) {
	fetcher := &fakeFetcher{}
	syncer, store := newTestSyncer(t, fetcher)
	ctx := context.Background()

	store.MarkFailed(ctx, []int64{10, 11}, "outage")
	fetcher.items = []partner.Item{testItem(10), testItem(11)}

	task := NewRetryTask(syncer, store, 0, 100)
	task.runOnce(ctx)

	for _, uid := range []int64{10, 11} {
		rec, err := store.GetByUID(ctx, uid)
		if err != nil {
			t.Fatal(err)
		}
		if rec.SyncStatus != model.SyncStatusSuccess {
			t.Fatalf("uid %d not recovered: %+v", uid, rec)
		}
	}

	// nothing failed left, the next round is a no-op
	calls := fetcher.batchCalls
	task.runOnce(ctx)
	if fetcher.batchCalls != calls {
		t.Fatal("retry round must skip when no failed records exist")
	}
}

func TestRetryTaskDisabled(t *testing.T) {
	fetcher := &fakeFetcher{}
	syncer, store := newTestSyncer(t, fetcher)

	task := NewRetryTask(syncer, store, 0, 100)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("disabled task must return immediately: %v", err)
	}
}
