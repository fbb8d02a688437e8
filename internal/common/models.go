package common

import "time"

// TimestampModel 时间戳基础模型
// 项目、提示词等可变更实体嵌入此模型；执行日志与链路聚合
// 行的时间字段各有语义（完成时间、首末条时间），不在此列。
type TimestampModel struct {
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}
