package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/pkg/models"
	"gorm.io/gorm"
)

type gormRunnerStore struct {
	db *gorm.DB
}

func (s *gormRunnerStore) Create(ctx context.Context, r *models.Runner) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	return nil
}

func (s *gormRunnerStore) Get(ctx context.Context, id uuid.UUID) (*models.Runner, error) {
	var r models.Runner
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get runner: %w", err)
	}
	return &r, nil
}

func (s *gormRunnerStore) List(ctx context.Context) ([]*models.Runner, error) {
	var runners []*models.Runner
	if err := s.db.WithContext(ctx).Find(&runners).Error; err != nil {
		return nil, fmt.Errorf("list runners: %w", err)
	}
	return runners, nil
}

type gormErrorLogStore struct {
	db *gorm.DB
}

func (s *gormErrorLogStore) Create(ctx context.Context, e *models.ErrorLog) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("create error log: %w", err)
	}
	return nil
}

func (s *gormErrorLogStore) List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.ErrorLog, error) {
	var logs []*models.ErrorLog
	q := s.db.WithContext(ctx).Order("timestamp ASC")
	if minID != nil {
		q = q.Where("id >= ?", *minID)
	}
	if maxID != nil {
		q = q.Where("id <= ?", *maxID)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	return logs, nil
}

func (s *gormErrorLogStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ErrorLog{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count error logs: %w", err)
	}
	return n, nil
}

type gormScreenshotStore struct {
	db *gorm.DB
}

func (s *gormScreenshotStore) Create(ctx context.Context, sc *models.Screenshot) error {
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(sc).Error; err != nil {
		return fmt.Errorf("create screenshot: %w", err)
	}
	return nil
}

func (s *gormScreenshotStore) Get(ctx context.Context, id uuid.UUID) (*models.Screenshot, error) {
	var sc models.Screenshot
	if err := s.db.WithContext(ctx).First(&sc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get screenshot: %w", err)
	}
	return &sc, nil
}

func (s *gormScreenshotStore) List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.Screenshot, error) {
	var shots []*models.Screenshot
	q := s.db.WithContext(ctx).Order("timestamp ASC")
	if minID != nil {
		q = q.Where("id >= ?", *minID)
	}
	if maxID != nil {
		q = q.Where("id <= ?", *maxID)
	}
	if err := q.Find(&shots).Error; err != nil {
		return nil, fmt.Errorf("list screenshots: %w", err)
	}
	return shots, nil
}

func (s *gormScreenshotStore) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Screenshot, error) {
	var shots []*models.Screenshot
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("timestamp ASC").Find(&shots).Error; err != nil {
		return nil, fmt.Errorf("list screenshots by task: %w", err)
	}
	return shots, nil
}
