package workflow_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/workflow"
	"github.com/simplesurance/stagecoord/internal/workflow/mocks"
)

func newSetFlagsStep(t *testing.T, clt *mocks.MockBuildClient) *workflow.SetFlagsStep {
	t.Helper()

	step, err := workflow.NewSetFlagsStepFromMap(clt, map[string]any{
		"step":          "set_flags",
		"target_prefix": "devel:auto",
		"repository":    "standard",
		"flags": map[string]any{
			"publish": "disable",
			"build":   "enable",
		},
	})
	require.NoError(t, err)

	return step
}

func TestSetFlagsStepSetsFlagsInStableOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	clt := mocks.NewMockBuildClient(ctrl)
	step := newSetFlagsStep(t, clt)

	// flags are applied sorted by name
	gomock.InOrder(
		clt.EXPECT().SetFlag(gomock.Any(), testTarget, "build", "enable", "standard", "").Return(nil),
		clt.EXPECT().SetFlag(gomock.Any(), testTarget, "publish", "disable", "standard", "").Return(nil),
	)

	outcome, err := step.Apply(context.Background(), prEvent(provider.ActionOpened))
	require.NoError(t, err)

	assert.Equal(t, workflow.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "set 2 flags", outcome.Message)
}

func TestSetFlagsStepIgnoresClosedAndReopened(t *testing.T) {
	ctrl := gomock.NewController(t)
	clt := mocks.NewMockBuildClient(ctrl)
	step := newSetFlagsStep(t, clt)

	for _, action := range []string{provider.ActionClosed, provider.ActionReopened} {
		outcome, err := step.Apply(context.Background(), prEvent(action))
		require.NoError(t, err)
		assert.Equal(t, workflow.OutcomeSuccess, outcome.Status)
	}
}

func TestNewSetFlagsStepFromMapRequiresFlags(t *testing.T) {
	ctrl := gomock.NewController(t)
	clt := mocks.NewMockBuildClient(ctrl)

	_, err := workflow.NewSetFlagsStepFromMap(clt, map[string]any{
		"target_prefix": "devel:auto",
	})
	require.Error(t, err)
}
