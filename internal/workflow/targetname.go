package workflow

import (
	"fmt"
	"strings"

	"github.com/simplesurance/stagecoord/internal/provider"
)

// shortSHALen is the truncation length for commit shas embedded in target
// project names.
const shortSHALen = 7

// TargetProject returns the name of the container project a step acts on
// for the envelope.
// The name is a pure function of the envelope: pull-request events embed the
// PR number, push events the truncated commit sha, tag-push events the tag
// name. Duplicate and retried deliveries therefore always address the same
// target.
func TargetProject(prefix string, ev *provider.Event) (string, error) {
	if prefix == "" {
		return "", NewValidationError("target prefix is empty")
	}

	repo := strings.ReplaceAll(ev.TargetRepositoryFullName, "/", ":")
	if repo == "" {
		return "", NewValidationError("envelope has no target repository")
	}

	switch ev.EventType {
	case provider.EventTypePullRequest:
		if ev.PullRequestNr <= 0 {
			return "", NewValidationError("pull_request envelope has no pull request number")
		}

		return fmt.Sprintf("%s:%s:PR-%d", prefix, repo, ev.PullRequestNr), nil

	case provider.EventTypePush:
		if ev.CommitSHA == "" {
			return "", NewValidationError("push envelope has no commit sha")
		}

		sha := ev.CommitSHA
		if len(sha) > shortSHALen {
			sha = sha[:shortSHALen]
		}

		return prefix + ":" + repo + ":" + sha, nil

	case provider.EventTypeTagPush:
		if ev.TagName == "" {
			return "", NewValidationError("tag_push envelope has no tag name")
		}

		return prefix + ":" + repo + ":" + ev.TagName, nil

	default:
		return "", NewValidationError("unsupported event type: %q", ev.EventType)
	}
}
