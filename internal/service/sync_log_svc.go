package service

import (
	"context"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
)

// SyncLogService 同步日志
// 日志写入失败只记录，不影响同步流程
type SyncLogService struct {
	repo repository.SyncLogRepository
	log  logger.Logger
}

// NewSyncLogService 创建同步日志服务
func NewSyncLogService(repo repository.SyncLogRepository, log logger.Logger) *SyncLogService {
	return &SyncLogService{repo: repo, log: log}
}

// Success 记录成功
func (s *SyncLogService) Success(ctx context.Context, direction, entityType, entityID, detail string) {
	s.write(ctx, direction, entityType, entityID, model.SyncStatusSuccess, detail)
}

// Failure 记录失败
func (s *SyncLogService) Failure(ctx context.Context, direction, entityType, entityID string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.write(ctx, direction, entityType, entityID, model.SyncStatusFailed, detail)
}

func (s *SyncLogService) write(ctx context.Context, direction, entityType, entityID, status, detail string) {
	entry := &model.SyncLogEntry{
		Direction:  direction,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     status,
		Detail:     detail,
		RunID:      logger.RunID(ctx),
	}
	// 运行超时后仍需落日志
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.Create(writeCtx, entry); err != nil {
		s.log.Errorf(ctx, "[SyncLogService] 写同步日志失败 %s/%s: %v", entityType, entityID, err)
	}
}

// List 查询同步日志
func (s *SyncLogService) List(ctx context.Context, filter repository.SyncLogFilter) ([]model.SyncLogEntry, int64, error) {
	return s.repo.List(ctx, filter)
}

// ErrorPatterns 最近失败聚合，仅供排查
func (s *SyncLogService) ErrorPatterns(ctx context.Context, window time.Duration, limit int) ([]repository.ErrorPattern, error) {
	return s.repo.ErrorPatterns(ctx, time.Now().Add(-window), limit)
}
