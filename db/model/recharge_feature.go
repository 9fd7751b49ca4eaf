package model

import "time"

// 用户充值特征表
// 1. 记录从上游平台拉取的每个 uid 的充值特征数据；
// 2. uid 唯一，同步永远是 upsert，不产生重复记录；
// 3. sync_status 记录最近一次同步的结果，失败时 sync_error 保留上游错误信息，
//    已有的金额字段不回滚，保留最后一次成功同步的值；

const TableUserRechargeFeature = "user_recharge_features"

const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

type UserRechargeFeature struct {
	CommonField
	UID            int64     `gorm:"column:uid;uniqueIndex" json:"uid"`
	TotalRecharge  int64     `gorm:"default:0" json:"totalRecharge"` // 总充值金额(分)
	Day1Coin       float64   `gorm:"type:decimal(10,2);default:0" json:"day1Coin"`
	Day2Coin       float64   `gorm:"type:decimal(10,2);default:0" json:"day2Coin"`
	Day7Coin       float64   `gorm:"type:decimal(10,2);default:0" json:"day7Coin"`
	Day30Coin      float64   `gorm:"type:decimal(10,2);default:0" json:"day30Coin"`
	IsValuableUser bool      `json:"isValuableUser"`
	IsHundredUser  bool      `json:"isHundredUser"`
	RegisterTime   *int64    `json:"registerTime"` // 上游注册时间戳(毫秒)，可能为空
	LastSyncAt     time.Time `gorm:"index" json:"lastSyncAt"`
	SyncStatus     string    `gorm:"type:varchar(16);default:pending;index" json:"syncStatus"`
	SyncError      string    `gorm:"type:text" json:"syncError"`
}

func (UserRechargeFeature) TableName() string {
	return TableUserRechargeFeature
}

type CommonField struct {
	ID        int       `gorm:"primarykey" json:"id"` // 主键ID
	CreatedAt time.Time `json:"createdAt"`            // 创建时间
	UpdatedAt time.Time `json:"updatedAt"`            // 更新时间
}
