package models

import "time"

// ShareAccess stores aggregated share fetch counts per day and share code.
type ShareAccess struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Day       string    `gorm:"index:idx_share_access_day_code,unique;size:10;not null" json:"day"`
	ShareCode string    `gorm:"index:idx_share_access_day_code,unique;size:32;not null" json:"shareCode"`
	Hits      int64     `gorm:"not null;default:0" json:"hits"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
