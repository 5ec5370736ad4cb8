package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rupiah-scanner/src/models"

	"gorm.io/gorm"
)

// Store 平台的授权存储
type Store interface {
	// Granted 返回权限是否已授予；未记录时 granted 为 false
	Granted(ctx context.Context, permission string) (bool, error)
	Save(ctx context.Context, permission string, granted bool) error
}

// MemoryStore 进程内授权存储，重启后失效
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]bool)}
}

func (s *MemoryStore) Granted(ctx context.Context, permission string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[permission], nil
}

func (s *MemoryStore) Save(ctx context.Context, permission string, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[permission] = granted
	return nil
}

// DBStore 基于gorm的授权存储
type DBStore struct {
	db *gorm.DB
}

// NewDBStore 创建数据库授权存储并迁移表结构
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if err := db.AutoMigrate(&models.PermissionGrant{}); err != nil {
		return nil, fmt.Errorf("迁移权限表失败: %w", err)
	}
	return &DBStore{db: db}, nil
}

func (s *DBStore) Granted(ctx context.Context, permission string) (bool, error) {
	var grant models.PermissionGrant
	err := s.db.WithContext(ctx).Where("permission = ?", permission).First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询权限记录失败: %w", err)
	}
	return grant.Granted, nil
}

func (s *DBStore) Save(ctx context.Context, permission string, granted bool) error {
	var grant models.PermissionGrant
	err := s.db.WithContext(ctx).
		Where(models.PermissionGrant{Permission: permission}).
		Assign(map[string]interface{}{"granted": granted}).
		FirstOrCreate(&grant).Error
	if err != nil {
		return fmt.Errorf("保存权限记录失败: %w", err)
	}
	return nil
}
