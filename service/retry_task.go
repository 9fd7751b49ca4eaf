package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// RetryTask 周期性地把失败状态的记录重新同步一遍。
// 记录没有终态，失败多少次都可以再试
type RetryTask struct {
	syncer   *Syncer
	store    *Store
	interval time.Duration
	limit    int
}

func NewRetryTask(syncer *Syncer, store *Store, interval time.Duration, limit int) *RetryTask {
	return &RetryTask{
		syncer:   syncer,
		store:    store,
		interval: interval,
		limit:    limit,
	}
}

// Run 轮询失败记录并重新同步，收到 ctx 取消信号后退出
func (t *RetryTask) Run(ctx context.Context) error {
	if t.interval <= 0 {
		log.Info("failed-record retry task disabled")
		return nil
	}

	log.Info("failed-record retry task started", "interval", t.interval, "limit", t.limit)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("retry task recv ctx cancel signal, will close")
			return ctx.Err()
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

func (t *RetryTask) runOnce(ctx context.Context) {
	uids, err := t.store.ListFailedUIDs(ctx, t.limit)
	if err != nil {
		log.Error("retry task list failed uids", "error", err)
		return
	}
	if len(uids) == 0 {
		return
	}

	log.Info("retrying failed records", "count", len(uids))

	out, err := t.syncer.BatchSync(ctx, uids)
	if err != nil {
		log.Error("retry task sync error", "error", err)
		return
	}

	log.Info("retry round done", "synced", out.SyncedCount, "failed", out.FailedCount)
}
