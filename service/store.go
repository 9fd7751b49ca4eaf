package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recharge-sync/db/model"
	"recharge-sync/partner"
)

// Store 充值特征记录的持久层，按 uid upsert，绝不产生重复记录
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// upsert 时需要整体覆盖的列
var upsertColumns = []string{
	"total_recharge", "day1_coin", "day2_coin", "day7_coin", "day30_coin",
	"is_valuable_user", "is_hundred_user", "register_time",
	"last_sync_at", "sync_status", "sync_error", "updated_at",
}

// 标记失败时只动状态列，保留已有的金额数据
var markFailedColumns = []string{"last_sync_at", "sync_status", "sync_error", "updated_at"}

// Upsert 写入一条成功同步的记录：不存在则创建，存在则覆盖金额字段和标记，
// 并刷新 last_sync_at、清空 sync_error
func (s *Store) Upsert(ctx context.Context, item partner.Item) error {
	now := time.Now()
	rec := model.UserRechargeFeature{
		UID:            item.UID,
		TotalRecharge:  item.TotalRecharge,
		Day1Coin:       item.Day1Coin,
		Day2Coin:       item.Day2Coin,
		Day7Coin:       item.Day7Coin,
		Day30Coin:      item.Day30Coin,
		IsValuableUser: item.ValuableUser,
		IsHundredUser:  item.HundredUser,
		RegisterTime:   item.RegisterTime,
		LastSyncAt:     now,
		SyncStatus:     model.SyncStatusSuccess,
		SyncError:      "",
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "upsert recharge feature uid %d", item.UID)
	}

	return nil
}

// MarkFailed 把给定 uid 的记录标记为失败，不存在的记录以默认值创建。
// 每个 uid 独立写入，单条失败不影响其他条
func (s *Store) MarkFailed(ctx context.Context, uids []int64, errMsg string) {
	now := time.Now()
	for _, uid := range uids {
		rec := model.UserRechargeFeature{
			UID:        uid,
			LastSyncAt: now,
			SyncStatus: model.SyncStatusFailed,
			SyncError:  errMsg,
		}

		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "uid"}},
				DoUpdates: clause.AssignmentColumns(markFailedColumns),
			}).
			Create(&rec).Error
		if err != nil {
			log.Error("mark sync failed error", "uid", uid, "error", err)
		}
	}
}

// List 过滤加分页查询，按 last_sync_at 倒序
func (s *Store) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	page := q.Page
	if page <= 0 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	tx := s.db.WithContext(ctx).Model(&model.UserRechargeFeature{})
	if q.UID != nil {
		tx = tx.Where("uid = ?", *q.UID)
	}
	if q.IsValuableUser != nil {
		tx = tx.Where("is_valuable_user = ?", *q.IsValuableUser)
	}
	if q.IsHundredUser != nil {
		tx = tx.Where("is_hundred_user = ?", *q.IsHundredUser)
	}
	if q.SyncStatus != "" {
		tx = tx.Where("sync_status = ?", q.SyncStatus)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, errors.Wrap(err, "count recharge features")
	}

	var items []model.UserRechargeFeature
	err := tx.Order("last_sync_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "list recharge features")
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// GetByUID 按 uid 查询单条，未找到返回 gorm.ErrRecordNotFound
func (s *Store) GetByUID(ctx context.Context, uid int64) (*model.UserRechargeFeature, error) {
	var rec model.UserRechargeFeature
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&rec).Error
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// DeleteByUID 删除单条记录，返回是否真的删掉了
func (s *Store) DeleteByUID(ctx context.Context, uid int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("uid = ?", uid).
		Delete(&model.UserRechargeFeature{})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "delete recharge feature uid %d", uid)
	}

	return res.RowsAffected > 0, nil
}

// Stats 全表聚合统计
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := new(Stats)

	counts := []struct {
		status string
		dst    *int64
	}{
		{"", &stats.Total},
		{model.SyncStatusSuccess, &stats.SuccessCount},
		{model.SyncStatusFailed, &stats.FailedCount},
		{model.SyncStatusPending, &stats.PendingCount},
	}
	for _, c := range counts {
		tx := s.db.WithContext(ctx).Model(&model.UserRechargeFeature{})
		if c.status != "" {
			tx = tx.Where("sync_status = ?", c.status)
		}
		if err := tx.Count(c.dst).Error; err != nil {
			return nil, errors.Wrap(err, "count sync stats")
		}
	}

	var latest model.UserRechargeFeature
	err := s.db.WithContext(ctx).
		Order("last_sync_at DESC").
		First(&latest).Error
	switch {
	case err == nil:
		stats.LastSyncAt = &latest.LastSyncAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 空表，lastSyncAt 保持为空
	default:
		return nil, errors.Wrap(err, "query last sync time")
	}

	return stats, nil
}

// ListFailedUIDs 给后台重试任务用：最久未同步的失败记录优先
func (s *Store) ListFailedUIDs(ctx context.Context, limit int) ([]int64, error) {
	var uids []int64
	err := s.db.WithContext(ctx).
		Model(&model.UserRechargeFeature{}).
		Where("sync_status = ?", model.SyncStatusFailed).
		Order("last_sync_at ASC").
		Limit(limit).
		Pluck("uid", &uids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list failed uids")
	}

	return uids, nil
}
