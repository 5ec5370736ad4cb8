package models

import "time"

// PermissionGrant 运行时权限授权记录，按权限名唯一
type PermissionGrant struct {
	ID         uint   `gorm:"primaryKey"`
	Permission string `gorm:"uniqueIndex;not null"`
	Granted    bool
	UpdatedAt  time.Time
}
