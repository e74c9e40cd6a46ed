package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/workflow"
)

func TestTargetProject(t *testing.T) {
	testcases := []struct {
		name     string
		event    *provider.Event
		expected string
	}{
		{
			name: "pull_request",
			event: &provider.Event{
				EventType:                provider.EventTypePullRequest,
				TargetRepositoryFullName: "acme/transmission",
				PullRequestNr:            17,
			},
			expected: "devel:auto:acme:transmission:PR-17",
		},
		{
			name: "push truncates the sha",
			event: &provider.Event{
				EventType:                provider.EventTypePush,
				TargetRepositoryFullName: "acme/transmission",
				CommitSHA:                "5f3e9abcdd51eb4b3b1b0c1ea9e7f9ab2cdd51eb",
			},
			expected: "devel:auto:acme:transmission:5f3e9ab",
		},
		{
			name: "push with short sha",
			event: &provider.Event{
				EventType:                provider.EventTypePush,
				TargetRepositoryFullName: "acme/transmission",
				CommitSHA:                "5f3e",
			},
			expected: "devel:auto:acme:transmission:5f3e",
		},
		{
			name: "tag_push",
			event: &provider.Event{
				EventType:                provider.EventTypeTagPush,
				TargetRepositoryFullName: "acme/transmission",
				TagName:                  "v1.2.0",
			},
			expected: "devel:auto:acme:transmission:v1.2.0",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			name, err := workflow.TargetProject("devel:auto", tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, name)

			// the name is a pure function of the envelope, a duplicate
			// delivery addresses the same target
			again, err := workflow.TargetProject("devel:auto", tc.event)
			require.NoError(t, err)
			assert.Equal(t, name, again)
		})
	}
}

func TestTargetProjectValidation(t *testing.T) {
	testcases := []struct {
		name   string
		prefix string
		event  *provider.Event
	}{
		{
			name:   "empty prefix",
			prefix: "",
			event: &provider.Event{
				EventType:                provider.EventTypePush,
				TargetRepositoryFullName: "acme/transmission",
				CommitSHA:                "5f3e9ab",
			},
		},
		{
			name:   "missing repository",
			prefix: "devel:auto",
			event: &provider.Event{
				EventType: provider.EventTypePush,
				CommitSHA: "5f3e9ab",
			},
		},
		{
			name:   "pull_request without number",
			prefix: "devel:auto",
			event: &provider.Event{
				EventType:                provider.EventTypePullRequest,
				TargetRepositoryFullName: "acme/transmission",
			},
		},
		{
			name:   "push without sha",
			prefix: "devel:auto",
			event: &provider.Event{
				EventType:                provider.EventTypePush,
				TargetRepositoryFullName: "acme/transmission",
			},
		},
		{
			name:   "tag_push without tag",
			prefix: "devel:auto",
			event: &provider.Event{
				EventType:                provider.EventTypeTagPush,
				TargetRepositoryFullName: "acme/transmission",
			},
		},
		{
			name:   "unsupported event type",
			prefix: "devel:auto",
			event: &provider.Event{
				EventType:                "issue_comment",
				TargetRepositoryFullName: "acme/transmission",
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := workflow.TargetProject(tc.prefix, tc.event)

			var validationErr *workflow.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}
