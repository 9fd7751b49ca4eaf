package service

import (
	"time"

	"recharge-sync/db/model"
)

const (
	DetailStatusSuccess = "success"
	DetailStatusFailed  = "failed"
)

// SyncDetail 单个 uid 的同步结果
type SyncDetail struct {
	UID     int64  `json:"uid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Outcome 一次 sync/batchSync 的聚合结果，调用方只会拿到它，
// 上游的失败都被折叠成 FailedCount 和 Details
type Outcome struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	SyncedCount int          `json:"syncedCount"`
	FailedCount int          `json:"failedCount"`
	Details     []SyncDetail `json:"details"`
}

type SyncRequest struct {
	UserIds string `json:"userIds"`
}

type BatchSyncRequest struct {
	UserIds []int64 `json:"userIds"`
}

type DirectSyncRequest struct {
	UserIds string `json:"userIds"`
	Token   string `json:"token"`
}

// ListQuery 查询参数，指针字段为 nil 时不参与过滤
type ListQuery struct {
	Page           int
	Limit          int
	UID            *int64
	IsValuableUser *bool
	IsHundredUser  *bool
	SyncStatus     string
}

type ListResult struct {
	Items      []model.UserRechargeFeature `json:"items"`
	Total      int64                       `json:"total"`
	Page       int                         `json:"page"`
	Limit      int                         `json:"limit"`
	TotalPages int                         `json:"totalPages"`
}

type Stats struct {
	Total        int64      `json:"total"`
	SuccessCount int64      `json:"successCount"`
	FailedCount  int64      `json:"failedCount"`
	PendingCount int64      `json:"pendingCount"`
	LastSyncAt   *time.Time `json:"lastSyncAt"`
}

// ValidationError 入参非法，在任何网络调用之前就被拒绝
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}
