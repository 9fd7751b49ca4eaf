package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"recharge-sync/partner"
)

// 上游响应里缺失某个被请求的 uid 时记录的失败原因。
// 缺失按失败处理：记录被标记为 failed，已有金额数据保留，
// 这样 syncedCount+failedCount 始终等于请求的去重 uid 数
const msgNoUpstreamData = "no data returned from upstream"

// Fetcher 是同步编排器对上游客户端的依赖面，测试用假实现替换
type Fetcher interface {
	Fetch(ctx context.Context, userIds string) ([]partner.Item, error)
	FetchWithToken(ctx context.Context, userIds string, token string) ([]partner.Item, error)
	BatchFetch(ctx context.Context, uids []int64) ([]partner.Item, error)
	BatchSize() int
}

// Syncer 驱动拉取并把每个 uid 的结果落库
type Syncer struct {
	fetcher Fetcher
	store   *Store
}

func NewSyncer(fetcher Fetcher, store *Store) *Syncer {
	return &Syncer{
		fetcher: fetcher,
		store:   store,
	}
}

// Sync 同步一组逗号分隔的 uid。拉取整体失败时所有请求的 uid 都被标记
// 失败，调用方永远拿到 Outcome 而不是裸错误
func (s *Syncer) Sync(ctx context.Context, userIds string) (*Outcome, error) {
	uids, err := parseUIDs(userIds)
	if err != nil {
		return nil, err
	}

	log.Info("sync start", "uids", len(uids))

	var items []partner.Item
	if len(uids) > s.fetcher.BatchSize() {
		items, err = s.fetcher.BatchFetch(ctx, uids)
	} else {
		items, err = s.fetcher.Fetch(ctx, joinUIDs(uids))
	}
	if err != nil {
		return s.failAll(ctx, uids, err), nil
	}

	return s.persist(ctx, uids, items), nil
}

// BatchSync 大批量数字 uid 的入口，直接走分批拉取
func (s *Syncer) BatchSync(ctx context.Context, uids []int64) (*Outcome, error) {
	uids = dedupUIDs(uids)
	if len(uids) == 0 {
		return nil, &ValidationError{Msg: "userIds is empty"}
	}

	log.Info("batch sync start", "uids", len(uids))

	items, err := s.fetcher.BatchFetch(ctx, uids)
	if err != nil {
		return s.failAll(ctx, uids, err), nil
	}

	return s.persist(ctx, uids, items), nil
}

// Resync 重新同步单个 uid
func (s *Syncer) Resync(ctx context.Context, uid int64) (*Outcome, error) {
	return s.Sync(ctx, strconv.FormatInt(uid, 10))
}

// SyncDirect 用调用方提供的 token 直接拉取并落库，绕过会话缓存。
// 调试用入口：拉取失败时不改动已有记录，只在结果里报告
func (s *Syncer) SyncDirect(ctx context.Context, userIds string, token string) (*Outcome, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &ValidationError{Msg: "token is empty"}
	}

	uids, err := parseUIDs(userIds)
	if err != nil {
		return nil, err
	}

	items, ferr := s.fetcher.FetchWithToken(ctx, joinUIDs(uids), token)
	if ferr != nil {
		out := &Outcome{
			Success:     false,
			Message:     fmt.Sprintf("direct sync failed: %v", ferr),
			FailedCount: len(uids),
		}
		for _, uid := range uids {
			out.Details = append(out.Details, SyncDetail{UID: uid, Status: DetailStatusFailed, Message: ferr.Error()})
		}
		return out, nil
	}

	return s.persist(ctx, uids, items), nil
}

// persist 逐条 upsert 上游返回的数据，响应里缺失的 uid 标记为失败
func (s *Syncer) persist(ctx context.Context, uids []int64, items []partner.Item) *Outcome {
	out := &Outcome{Success: true}
	seen := make(map[int64]bool, len(items))

	for _, item := range items {
		seen[item.UID] = true
		if err := s.store.Upsert(ctx, item); err != nil {
			log.Error("save recharge feature failed", "uid", item.UID, "error", err)
			out.FailedCount++
			out.Details = append(out.Details, SyncDetail{UID: item.UID, Status: DetailStatusFailed, Message: err.Error()})
			continue
		}
		out.SyncedCount++
		out.Details = append(out.Details, SyncDetail{UID: item.UID, Status: DetailStatusSuccess, Message: "synced"})
	}

	var missing []int64
	for _, uid := range uids {
		if !seen[uid] {
			missing = append(missing, uid)
		}
	}
	if len(missing) > 0 {
		log.Warn("uids missing from upstream response", "count", len(missing))
		s.store.MarkFailed(ctx, missing, msgNoUpstreamData)
		for _, uid := range missing {
			out.FailedCount++
			out.Details = append(out.Details, SyncDetail{UID: uid, Status: DetailStatusFailed, Message: msgNoUpstreamData})
		}
	}

	out.Message = fmt.Sprintf("sync finished: %d synced, %d failed", out.SyncedCount, out.FailedCount)
	log.Info("sync done", "synced", out.SyncedCount, "failed", out.FailedCount)

	return out
}

// failAll 整体拉取失败：所有请求的 uid 标记失败，保留历史金额数据
func (s *Syncer) failAll(ctx context.Context, uids []int64, err error) *Outcome {
	log.Error("sync fetch failed entirely", "uids", len(uids), "error", err)
	s.store.MarkFailed(ctx, uids, err.Error())

	out := &Outcome{
		Success:     false,
		Message:     fmt.Sprintf("sync failed: %v", err),
		FailedCount: len(uids),
	}
	for _, uid := range uids {
		out.Details = append(out.Details, SyncDetail{UID: uid, Status: DetailStatusFailed, Message: err.Error()})
	}

	return out
}

func parseUIDs(userIds string) ([]int64, error) {
	parts := strings.Split(userIds, ",")
	uids := make([]int64, 0, len(parts))
	seen := make(map[int64]bool, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		uid, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("invalid uid %q", p)}
		}
		if seen[uid] {
			continue
		}
		seen[uid] = true
		uids = append(uids, uid)
	}

	if len(uids) == 0 {
		return nil, &ValidationError{Msg: "userIds is empty"}
	}

	return uids, nil
}

func dedupUIDs(uids []int64) []int64 {
	seen := make(map[int64]bool, len(uids))
	out := make([]int64, 0, len(uids))
	for _, uid := range uids {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}

	return out
}

func joinUIDs(uids []int64) string {
	strs := make([]string, len(uids))
	for i, uid := range uids {
		strs[i] = strconv.FormatInt(uid, 10)
	}

	return strings.Join(strs, ",")
}
