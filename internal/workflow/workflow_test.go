package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/workflow"
)

func matchEvent(json string) *provider.Event {
	return &provider.Event{
		SCM:  "github",
		JSON: []byte(json),
	}
}

func TestWorkflowMatch(t *testing.T) {
	const query = `.action == "opened" and .pull_request.base.ref == "main"`

	wf, err := workflow.New("pr-staging", "github", query, nil)
	require.NoError(t, err)

	testcases := []struct {
		name     string
		event    *provider.Event
		expected workflow.MatchResult
	}{
		{
			name: "match",
			event: matchEvent(
				`{"action": "opened", "pull_request": {"base": {"ref": "main"}}}`,
			),
			expected: workflow.Match,
		},
		{
			name: "filter mismatch",
			event: matchEvent(
				`{"action": "closed", "pull_request": {"base": {"ref": "main"}}}`,
			),
			expected: workflow.FilterMismatch,
		},
		{
			name: "missing keys evaluate to false",
			event: matchEvent(
				`{"something": "else"}`,
			),
			expected: workflow.FilterMismatch,
		},
		{
			name: "event source mismatch",
			event: &provider.Event{
				SCM:  "gitlab",
				JSON: []byte(`{"action": "opened"}`),
			},
			expected: workflow.EventSourceMismatch,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := wf.Match(context.Background(), tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestWorkflowMatchErrors(t *testing.T) {
	wf, err := workflow.New("pr-staging", "github", ".action", nil)
	require.NoError(t, err)

	// non-bool query result
	_, err = wf.Match(context.Background(), matchEvent(`{"action": "opened"}`))
	require.Error(t, err)

	// empty payload
	_, err = wf.Match(context.Background(), &provider.Event{SCM: "github"})
	require.Error(t, err)

	// invalid json
	_, err = wf.Match(context.Background(), matchEvent(`{invalid`))
	require.Error(t, err)
}

func TestNewRejectsInvalidQuery(t *testing.T) {
	_, err := workflow.New("broken", "github", ".action ==", nil)
	require.Error(t, err)
}
