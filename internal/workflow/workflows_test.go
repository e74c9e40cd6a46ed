package workflow_test

import (
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/cfg"
	"github.com/simplesurance/stagecoord/internal/workflow"
	"github.com/simplesurance/stagecoord/internal/workflow/mocks"
)

const workflowsConfig = `
[[workflow]]
name = "pr-staging"
event_source = "github"
filter_query = '.action == "opened"'

  [[workflow.step]]
  step = "branch"
  source_project = "network:utilities"
  source_package = "transmission"
  target_prefix = "devel:auto"

  [[workflow.step]]
  step = "configure_repositories"
  target_prefix = "devel:auto"
  repository = "standard"
  architectures = ["x86_64"]
  path_project = "openSUSE:Factory"
  path_repository = "snapshot"

  [[workflow.step]]
  step = "trigger_build"
  target_prefix = "devel:auto"
  package = "transmission"

  [[workflow.step]]
  step = "submit_request"
  source_project = "network:utilities"
  source_package = "transmission"
  target_project = "distribution"
`

func testStepDeps(t *testing.T) *workflow.StepDeps {
	t.Helper()

	ctrl := gomock.NewController(t)

	return &workflow.StepDeps{
		BuildClient:   mocks.NewMockBuildClient(ctrl),
		Reporter:      mocks.NewMockStatusReporter(ctrl),
		Subscriptions: mocks.NewMockSubscriptionManager(ctrl),
		MergeChecker:  mocks.NewMockMergeChecker(ctrl),
		Requests:      mocks.NewMockRequestCreator(ctrl),
	}
}

func TestWorkflowsFromCfg(t *testing.T) {
	config, err := cfg.Load(strings.NewReader(workflowsConfig))
	require.NoError(t, err)

	workflows, err := workflow.WorkflowsFromCfg(config, testStepDeps(t))
	require.NoError(t, err)
	require.Len(t, workflows, 1)

	wf := workflows[0]
	assert.Equal(t, "pr-staging", wf.Name())

	steps := wf.Steps()
	require.Len(t, steps, 4)
	assert.Equal(t, "branch", steps[0].Name())
	assert.Equal(t, "configure_repositories", steps[1].Name())
	assert.Equal(t, "trigger_build", steps[2].Name())
	assert.Equal(t, "submit_request", steps[3].Name())
}

func TestWorkflowsFromCfgValidation(t *testing.T) {
	testcases := []struct {
		name   string
		config string
	}{
		{
			name: "unsupported step",
			config: `
[[workflow]]
name = "wf"
filter_query = "true"

  [[workflow.step]]
  step = "teleport"
`,
		},
		{
			name: "missing step field",
			config: `
[[workflow]]
name = "wf"
filter_query = "true"

  [[workflow.step]]
  target_prefix = "devel:auto"
`,
		},
		{
			name: "missing workflow name",
			config: `
[[workflow]]
filter_query = "true"

  [[workflow.step]]
  step = "trigger_build"
  target_prefix = "devel:auto"
  package = "transmission"
`,
		},
		{
			name: "workflow without steps",
			config: `
[[workflow]]
name = "wf"
filter_query = "true"
`,
		},
		{
			name: "incomplete step configuration",
			config: `
[[workflow]]
name = "wf"
filter_query = "true"

  [[workflow.step]]
  step = "branch"
  source_project = "network:utilities"
`,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := cfg.Load(strings.NewReader(tc.config))
			require.NoError(t, err)

			_, err = workflow.WorkflowsFromCfg(config, testStepDeps(t))
			require.Error(t, err)
		})
	}
}
