package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pymada-go/pymada/pkg/models"
	"gorm.io/gorm"
)

type gormAgentStore struct {
	db *gorm.DB
}

func (s *gormAgentStore) Create(ctx context.Context, a *models.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *gormAgentStore) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var a models.Agent
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &a, nil
}

func (s *gormAgentStore) FindByIdentity(ctx context.Context, hostname, agentURL string) (*models.Agent, error) {
	var a models.Agent
	err := s.db.WithContext(ctx).
		Where("hostname = ? AND agent_url = ?", hostname, agentURL).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find agent by identity: %w", err)
	}
	return &a, nil
}

func (s *gormAgentStore) List(ctx context.Context, minID, maxID *uuid.UUID) ([]*models.Agent, error) {
	var agents []*models.Agent
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if minID != nil {
		q = q.Where("id >= ?", *minID)
	}
	if maxID != nil {
		q = q.Where("id <= ?", *maxID)
	}
	if err := q.Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

func (s *gormAgentStore) ListStaleSince(ctx context.Context, cutoffUnix int64) ([]*models.Agent, error) {
	var agents []*models.Agent
	if err := s.db.WithContext(ctx).Where("last_contact_attempt <= ?", cutoffUnix).Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("list stale agents: %w", err)
	}
	return agents, nil
}

func (s *gormAgentStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

func (s *gormAgentStore) UpdateState(ctx context.Context, id uuid.UUID, state models.AgentState) error {
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Update("agent_state", state).Error; err != nil {
		return fmt.Errorf("update agent state: %w", err)
	}
	return nil
}

func (s *gormAgentStore) TouchLastContact(ctx context.Context, id uuid.UUID, when int64) error {
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Update("last_contact_attempt", when).Error; err != nil {
		return fmt.Errorf("touch agent last contact: %w", err)
	}
	return nil
}

func (s *gormAgentStore) AssignTask(ctx context.Context, agentID, taskID uuid.UUID) error {
	updates := map[string]interface{}{
		"agent_state":       models.AgentAssigned,
		"assigned_task_id":  taskID,
	}
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", agentID).Updates(updates).Error; err != nil {
		return fmt.Errorf("assign task to agent: %w", err)
	}
	return nil
}

func (s *gormAgentStore) ClearAssignedTask(ctx context.Context, agentID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", agentID).Update("assigned_task_id", nil).Error; err != nil {
		return fmt.Errorf("clear assigned task: %w", err)
	}
	return nil
}

func (s *gormAgentStore) SetAssignedRunner(ctx context.Context, agentID, runnerID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", agentID).Update("assigned_runner_id", runnerID).Error; err != nil {
		return fmt.Errorf("set assigned runner: %w", err)
	}
	return nil
}
