package workflow_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/buildclt"
	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/workflow"
	"github.com/simplesurance/stagecoord/internal/workflow/mocks"
)

func newTriggerBuildStep(t *testing.T, clt *mocks.MockBuildClient) *workflow.TriggerBuildStep {
	t.Helper()

	step, err := workflow.NewTriggerBuildStepFromMap(clt, map[string]any{
		"step":          "trigger_build",
		"target_prefix": "devel:auto",
		"package":       "transmission",
	})
	require.NoError(t, err)

	return step
}

func TestTriggerBuildStepRebuilds(t *testing.T) {
	ctrl := gomock.NewController(t)
	clt := mocks.NewMockBuildClient(ctrl)
	step := newTriggerBuildStep(t, clt)

	clt.EXPECT().Rebuild(gomock.Any(), testTarget, "transmission").Return(nil)

	outcome, err := step.Apply(context.Background(), prEvent(provider.ActionOpened))
	require.NoError(t, err)

	assert.Equal(t, workflow.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "rebuild of transmission triggered", outcome.Message)
}

func TestTriggerBuildStepFailsOnMissingTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	clt := mocks.NewMockBuildClient(ctrl)
	step := newTriggerBuildStep(t, clt)

	clt.EXPECT().Rebuild(gomock.Any(), testTarget, "transmission").
		Return(buildclt.ErrNotFound)

	_, err := step.Apply(context.Background(), prEvent(provider.ActionUpdated))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTriggerBuildStepIgnoresClosedAndReopened(t *testing.T) {
	ctrl := gomock.NewController(t)
	clt := mocks.NewMockBuildClient(ctrl)
	step := newTriggerBuildStep(t, clt)

	for _, action := range []string{provider.ActionClosed, provider.ActionReopened} {
		outcome, err := step.Apply(context.Background(), prEvent(action))
		require.NoError(t, err)
		assert.Equal(t, workflow.OutcomeSuccess, outcome.Status)
	}
}
