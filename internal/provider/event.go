package provider

import (
	"fmt"

	"go.uber.org/zap"
)

// Event types of the normalized envelope.
const (
	EventTypePullRequest = "pull_request"
	EventTypePush        = "push"
	EventTypeTagPush     = "tag_push"
)

// Normalized pull-request sub-actions.
// SCM providers use differing action names ("synchronize" vs. "update"),
// they are mapped to these values before an event leaves the provider
// package.
const (
	ActionOpened   = "opened"
	ActionUpdated  = "updated"
	ActionClosed   = "closed"
	ActionReopened = "reopened"
)

// Event is the provider-independent envelope of one webhook delivery.
// All automation steps derive their target identity from envelope fields,
// never from the raw provider payload.
type Event struct {
	// JSON is the marshalled provider payload, used for workflow
	// filter-query evaluation.
	JSON []byte
	// SCM identifies the source-control provider, e.g. "github".
	SCM string

	DeliveryID string
	// EventType is one of EventTypePullRequest, EventTypePush,
	// EventTypeTagPush.
	EventType string
	// Action is set for pull_request events only.
	Action string
	// Merged is true for a closed pull_request event whose changes were
	// merged.
	Merged bool

	CommitSHA                string
	SourceRepositoryFullName string
	TargetRepositoryFullName string
	SourceBranch             string
	TargetBranch             string
	// PullRequestNr is 0 if the event is not a pull_request event.
	PullRequestNr int
	TagName       string
	APIEndpoint   string

	LogFields []zap.Field
}

func (e *Event) String() string {
	return fmt.Sprintf("%s/%s (deliveryID: %s)", e.SCM, e.EventType, e.DeliveryID)
}

// Validate reports whether the envelope carries the keys every automation
// step relies on. It is checked once on receipt, before any step runs.
func (e *Event) Validate() error {
	if e.SCM == "" {
		return fmt.Errorf("envelope is missing the scm field")
	}

	switch e.EventType {
	case EventTypePullRequest:
		if e.PullRequestNr <= 0 {
			return fmt.Errorf("pull_request envelope has no pull request number")
		}

		switch e.Action {
		case ActionOpened, ActionUpdated, ActionClosed, ActionReopened:
		default:
			return fmt.Errorf("pull_request envelope has unsupported action: %q", e.Action)
		}

	case EventTypePush:
		if e.CommitSHA == "" {
			return fmt.Errorf("push envelope has no commit sha")
		}

	case EventTypeTagPush:
		if e.TagName == "" {
			return fmt.Errorf("tag_push envelope has no tag name")
		}

	default:
		return fmt.Errorf("unsupported event type: %q", e.EventType)
	}

	return nil
}
