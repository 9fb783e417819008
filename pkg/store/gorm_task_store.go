package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/pkg/models"
	"gorm.io/gorm"
)

type gormTaskStore struct {
	db *gorm.DB
}

func (s *gormTaskStore) Create(ctx context.Context, t *models.UrlTask) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *gormTaskStore) CreateMany(ctx context.Context, tasks []*models.UrlTask) error {
	for _, t := range tasks {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}
	if err := s.db.WithContext(ctx).Create(&tasks).Error; err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}
	return nil
}

func (s *gormTaskStore) Get(ctx context.Context, id uuid.UUID) (*models.UrlTask, error) {
	var t models.UrlTask
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (s *gormTaskStore) List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.UrlTask, error) {
	var tasks []*models.UrlTask
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if minID != nil {
		q = q.Where("id >= ?", *minID)
	}
	if maxID != nil {
		q = q.Where("id <= ?", *maxID)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *gormTaskStore) CountByState(ctx context.Context, state models.TaskState) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UrlTask{}).Where("task_state = ?", state).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks by state: %w", err)
	}
	return n, nil
}

func (s *gormTaskStore) CountFailedAtLeastOnce(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UrlTask{}).Where("fail_num >= 1").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count failed tasks: %w", err)
	}
	return n, nil
}

func (s *gormTaskStore) NextQueued(ctx context.Context) (*models.UrlTask, error) {
	var t models.UrlTask
	err := s.db.WithContext(ctx).
		Where("task_state = ?", models.TaskQueued).
		Order("fail_num ASC, created_at ASC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("next queued task: %w", err)
	}
	return &t, nil
}

func (s *gormTaskStore) Assign(ctx context.Context, taskID, agentID uuid.UUID, startTime int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UrlTask{}).
			Where("id = ? AND task_state = ?", taskID, models.TaskQueued).
			Updates(map[string]interface{}{
				"task_state":       models.TaskAssigned,
				"assigned_agent_id": agentID,
				"start_time":       startTime,
			})
		if res.Error != nil {
			return fmt.Errorf("assign task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("assign task: task %s was not queued", taskID)
		}
		return nil
	})
}

func (s *gormTaskStore) Complete(ctx context.Context, taskID uuid.UUID, result *string, endTime int64) error {
	updates := map[string]interface{}{
		"task_state":        models.TaskComplete,
		"task_result":       result,
		"end_time":          endTime,
		"assigned_agent_id": nil,
	}
	if err := s.db.WithContext(ctx).Model(&models.UrlTask{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

func (s *gormTaskStore) Unassign(ctx context.Context, taskID uuid.UUID) error {
	updates := map[string]interface{}{
		"task_state":        models.TaskQueued,
		"assigned_agent_id": nil,
		"start_time":        0,
	}
	if err := s.db.WithContext(ctx).Model(&models.UrlTask{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return fmt.Errorf("unassign task: %w", err)
	}
	return nil
}

func (s *gormTaskStore) Requeue(ctx context.Context, taskID uuid.UUID, maxRetries int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.UrlTask
		if err := tx.First(&t, "id = ?", taskID).Error; err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}

		t.FailNum++
		nextState := models.TaskQueued
		if t.ExhaustedRetries(maxRetries) {
			nextState = models.TaskComplete
		}

		updates := map[string]interface{}{
			"fail_num":          t.FailNum,
			"start_time":        0,
			"task_state":        nextState,
			"assigned_agent_id": nil,
		}
		if err := tx.Model(&models.UrlTask{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		return nil
	})
}
