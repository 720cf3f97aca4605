package db

import "time"

// AdminSession 保存一次登录：当前用户快照与加密后的上游 token。
type AdminSession struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"index;size:64"`
	Username    string `gorm:"size:128"`
	Role        string `gorm:"size:32"`
	UserJSON    string `gorm:"type:text"`
	SealedToken []byte
	ExpiresAt   *time.Time `gorm:"index"`
	LastSeenAt  time.Time
	RefreshedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 固定表名
func (AdminSession) TableName() string {
	return "admin_sessions"
}
