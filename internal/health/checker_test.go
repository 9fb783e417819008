package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pymada-go/pymada/pkg/models"
	"github.com/pymada-go/pymada/pkg/store"
)

func TestCheckerReportsHealthyWithNoDatabaseToPing(t *testing.T) {
	st := store.NewMemStore()
	c := NewChecker(st)

	status := c.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Database.Status)
}

func TestCheckerCountsAgentsByState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	require.NoError(t, st.Agents().Create(ctx, &models.Agent{Hostname: "a", AgentURL: "http://a", AgentState: models.AgentIdle}))
	require.NoError(t, st.Agents().Create(ctx, &models.Agent{Hostname: "b", AgentURL: "http://b", AgentState: models.AgentIdle}))
	require.NoError(t, st.Agents().Create(ctx, &models.Agent{Hostname: "c", AgentURL: "http://c", AgentState: models.AgentLost}))

	status := NewChecker(st).Check(ctx)
	assert.Equal(t, int64(2), status.AgentsByState[string(models.AgentIdle)])
	assert.Equal(t, int64(1), status.AgentsByState[string(models.AgentLost)])
}
