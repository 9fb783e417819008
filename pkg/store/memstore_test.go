package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pymada-go/pymada/pkg/models"
)

func TestMemStoreNextQueuedOrdersByFailNumThenAge(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	older := &models.UrlTask{URL: "http://a", FailNum: 1}
	newer := &models.UrlTask{URL: "http://b", FailNum: 1}
	freshest := &models.UrlTask{URL: "http://c", FailNum: 0}

	require.NoError(t, st.Tasks().Create(ctx, older))
	require.NoError(t, st.Tasks().Create(ctx, newer))
	require.NoError(t, st.Tasks().Create(ctx, freshest))

	next, err := st.Tasks().NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, freshest.ID, next.ID, "fewest failures should win regardless of age")
}

func TestMemStoreAssignRejectsNonQueuedTask(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	task := &models.UrlTask{URL: "http://a"}
	require.NoError(t, st.Tasks().Create(ctx, task))

	agentID := mustAgent(t, st)
	require.NoError(t, st.Tasks().Assign(ctx, task.ID, agentID, 100))

	err := st.Tasks().Assign(ctx, task.ID, agentID, 200)
	assert.Error(t, err, "a task already ASSIGNED cannot be assigned again")
}

func TestMemStoreRequeueExhaustsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	task := &models.UrlTask{URL: "http://a", FailNum: 2}
	require.NoError(t, st.Tasks().Create(ctx, task))

	require.NoError(t, st.Tasks().Requeue(ctx, task.ID, 3))

	got, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskComplete, got.TaskState)
	assert.Equal(t, 3, got.FailNum)
	assert.Nil(t, got.AssignedAgentID)
}

func TestMemStoreRequeueKeepsQueuedBeforeMaxRetries(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	task := &models.UrlTask{URL: "http://a", FailNum: 0}
	require.NoError(t, st.Tasks().Create(ctx, task))

	require.NoError(t, st.Tasks().Requeue(ctx, task.ID, 3))

	got, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskQueued, got.TaskState)
	assert.Equal(t, 1, got.FailNum)
}

func TestMemStoreUnassignDoesNotTouchFailNum(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	task := &models.UrlTask{URL: "http://a"}
	require.NoError(t, st.Tasks().Create(ctx, task))
	agentID := mustAgent(t, st)
	require.NoError(t, st.Tasks().Assign(ctx, task.ID, agentID, 100))

	require.NoError(t, st.Tasks().Unassign(ctx, task.ID))

	got, err := st.Tasks().Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskQueued, got.TaskState)
	assert.Equal(t, 0, got.FailNum)
	assert.Nil(t, got.AssignedAgentID)
}

func mustAgent(t *testing.T, st *MemStore) uuid.UUID {
	t.Helper()
	a := &models.Agent{Hostname: "h", AgentURL: "http://agent"}
	require.NoError(t, st.Agents().Create(context.Background(), a))
	return a.ID
}
