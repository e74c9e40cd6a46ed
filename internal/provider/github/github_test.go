package github_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/stagecoord/internal/provider"
	"github.com/simplesurance/stagecoord/internal/provider/github"
)

const pullRequestOpenedPayload = `{
	"action": "opened",
	"number": 17,
	"pull_request": {
		"merged": false,
		"base": {"ref": "main"},
		"head": {
			"ref": "fix-build",
			"sha": "8ad9dec4298f6b8f020997373cf4fe22005f2c06",
			"repo": {"full_name": "fork/transmission"}
		}
	},
	"repository": {"full_name": "acme/transmission"}
}`

const pushPayload = `{
	"ref": "refs/heads/main",
	"after": "5f3e9abcdd51eb4b3b1b0c1ea9e7f9ab2cdd51eb",
	"repository": {"full_name": "acme/transmission"}
}`

const tagPushPayload = `{
	"ref": "refs/tags/v1.2.0",
	"after": "5f3e9abcdd51eb4b3b1b0c1ea9e7f9ab2cdd51eb",
	"repository": {"full_name": "acme/transmission"}
}`

func newWebhookReq(hookType, deliveryID, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/listener/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", hookType)
	req.Header.Set("X-GitHub-Delivery", deliveryID)

	return req
}

func handleWebhook(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, chan *provider.Event) {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := github.New([]chan<- *provider.Event{ch})

	recorder := httptest.NewRecorder()
	p.HTTPHandler(recorder, req)

	return recorder, ch
}

func TestHTTPHandlerNormalizesPullRequestEvent(t *testing.T) {
	req := newWebhookReq("pull_request", "delivery-123", pullRequestOpenedPayload)

	recorder, ch := handleWebhook(t, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	require.Len(t, ch, 1)
	ev := <-ch

	assert.Equal(t, "github", ev.SCM)
	assert.Equal(t, "delivery-123", ev.DeliveryID)
	assert.Equal(t, provider.EventTypePullRequest, ev.EventType)
	assert.Equal(t, provider.ActionOpened, ev.Action)
	assert.Equal(t, 17, ev.PullRequestNr)
	assert.False(t, ev.Merged)
	assert.Equal(t, "8ad9dec4298f6b8f020997373cf4fe22005f2c06", ev.CommitSHA)
	assert.Equal(t, "fix-build", ev.SourceBranch)
	assert.Equal(t, "main", ev.TargetBranch)
	assert.Equal(t, "fork/transmission", ev.SourceRepositoryFullName)
	assert.Equal(t, "acme/transmission", ev.TargetRepositoryFullName)
	assert.Equal(t, pullRequestOpenedPayload, string(ev.JSON))
	assert.NoError(t, ev.Validate())
}

func TestHTTPHandlerForwardsAPIEndpoint(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := github.New(
		[]chan<- *provider.Event{ch},
		github.WithAPIEndpoint("https://github.example.com"),
	)

	recorder := httptest.NewRecorder()
	p.HTTPHandler(recorder, newWebhookReq("push", "delivery-130", pushPayload))
	require.Equal(t, http.StatusOK, recorder.Code)

	require.Len(t, ch, 1)
	ev := <-ch
	assert.Equal(t, "https://github.example.com", ev.APIEndpoint)
}

func TestHTTPHandlerMapsSynchronizeToUpdated(t *testing.T) {
	payload := strings.Replace(pullRequestOpenedPayload, `"opened"`, `"synchronize"`, 1)
	req := newWebhookReq("pull_request", "delivery-124", payload)

	recorder, ch := handleWebhook(t, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	require.Len(t, ch, 1)
	ev := <-ch
	assert.Equal(t, provider.ActionUpdated, ev.Action)
}

func TestHTTPHandlerNormalizesPushEvent(t *testing.T) {
	req := newWebhookReq("push", "delivery-125", pushPayload)

	recorder, ch := handleWebhook(t, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	require.Len(t, ch, 1)
	ev := <-ch

	assert.Equal(t, provider.EventTypePush, ev.EventType)
	assert.Equal(t, "main", ev.TargetBranch)
	assert.Equal(t, "5f3e9abcdd51eb4b3b1b0c1ea9e7f9ab2cdd51eb", ev.CommitSHA)
	assert.Equal(t, "acme/transmission", ev.TargetRepositoryFullName)
}

func TestHTTPHandlerNormalizesTagPushEvent(t *testing.T) {
	req := newWebhookReq("push", "delivery-126", tagPushPayload)

	recorder, ch := handleWebhook(t, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	require.Len(t, ch, 1)
	ev := <-ch

	assert.Equal(t, provider.EventTypeTagPush, ev.EventType)
	assert.Equal(t, "v1.2.0", ev.TagName)
}

func TestHTTPHandlerAcknowledgesIrrelevantDeliveries(t *testing.T) {
	testcases := []struct {
		name string
		req  *http.Request
	}{
		{
			name: "unsupported pull_request action",
			req: newWebhookReq("pull_request", "delivery-127",
				strings.Replace(pullRequestOpenedPayload, `"opened"`, `"labeled"`, 1)),
		},
		{
			name: "unsupported event type",
			req: newWebhookReq("issues", "delivery-128",
				`{"action": "opened", "issue": {"number": 1}}`),
		},
		{
			name: "push to an unhandled ref",
			req: newWebhookReq("push", "delivery-129",
				strings.Replace(pushPayload, "refs/heads/main", "refs/notes/commits", 1)),
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			recorder, ch := handleWebhook(t, tc.req)

			// acknowledged so that github does not redeliver
			assert.Equal(t, http.StatusOK, recorder.Code)
			assert.Empty(t, ch)
		})
	}
}

func TestHTTPHandlerRejectsUnsignedPayloadWhenSecretIsSet(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := github.New(
		[]chan<- *provider.Event{ch},
		github.WithPayloadSecret("s3cret"),
	)

	recorder := httptest.NewRecorder()
	p.HTTPHandler(recorder, newWebhookReq("push", "delivery-130", pushPayload))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, ch)
}

func TestHTTPHandlerRejectsDeliveryWhenQueueIsFull(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event) // unbuffered, forwarding would block
	p := github.New([]chan<- *provider.Event{ch})

	recorder := httptest.NewRecorder()
	p.HTTPHandler(recorder, newWebhookReq("push", "delivery-131", pushPayload))

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}
