package github

import (
	"net/http"
	"strings"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/provider"
)

const loggerName = "github-event-provider"

// Provider listens for github webhook http-requests, validates them against
// the shared webhook secret and converts the payloads into normalized
// provider.Events.
// Deliveries of unsupported event types are acknowledged and dropped.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	apiEndpoint   string
	chans         []chan<- *provider.Event
}

type option func(*Provider)

func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

// WithAPIEndpoint records the api url of the github instance the webhooks
// originate from. It is carried in the envelope and logged with every run,
// so that deliveries of an enterprise instance are attributable in the
// ledger logs.
func WithAPIEndpoint(url string) option {
	return func(p *Provider) {
		p.apiEndpoint = url
	}
}

func New(eventChans []chan<- *provider.Event, opts ...option) *Provider {
	p := Provider{
		chans: eventChans,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		logfields.DeliveryID(deliveryID),
		zap.String("github.webhook_type", hookType),
	}

	logger := p.logger.With(logFields...)

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := p.normalize(event, payload)
	if err != nil {
		logger.Info(
			"ignoring event, normalization failed",
			logfields.Event("github_event_normalization_failed"),
			zap.Error(err),
		)
		// acknowledged, otherwise github retries deliveries that we
		// will never be able to process
		resp.WriteHeader(http.StatusOK)
		return
	}

	if ev == nil {
		logger.Debug("ignoring event, event type is unsupported",
			logfields.Event("github_unsupported_event_received"),
		)
		resp.WriteHeader(http.StatusOK)
		return
	}

	ev.DeliveryID = deliveryID
	ev.LogFields = append(logFields, envelopeLogFields(ev)...)

	for _, c := range p.chans {
		select {
		case c <- ev:
			logger.Debug("event forwarded to channel",
				logfields.Event("github_event_forwarded"),
			)

		default:
			logger.Warn(
				"event lost, forwarding event to channel would have blocked",
				logfields.Event("github_forwarding_event_failed"),
			)

			http.Error(resp, "queue full", http.StatusServiceUnavailable)
			return
		}
	}
}

// normalize converts a parsed github event into the provider-independent
// envelope. A nil result without error means the event type is not handled.
func (p *Provider) normalize(event any, payload []byte) (*provider.Event, error) {
	result := provider.Event{
		JSON:        payload,
		SCM:         "github",
		APIEndpoint: p.apiEndpoint,
	}

	switch ev := event.(type) {
	case *github.PullRequestEvent:
		result.EventType = provider.EventTypePullRequest
		result.Action = normalizePRAction(ev.GetAction())

		if result.Action == "" {
			return nil, nil
		}

		pr := ev.GetPullRequest()
		result.PullRequestNr = ev.GetNumber()
		result.Merged = pr.GetMerged()
		result.TargetRepositoryFullName = ev.GetRepo().GetFullName()
		result.TargetBranch = pr.GetBase().GetRef()

		if head := pr.GetHead(); head != nil {
			result.CommitSHA = head.GetSHA()
			result.SourceBranch = head.GetRef()
			result.SourceRepositoryFullName = head.GetRepo().GetFullName()
		}

	case *github.PushEvent:
		ref := ev.GetRef()
		result.CommitSHA = ev.GetAfter()
		result.SourceRepositoryFullName = ev.GetRepo().GetFullName()
		result.TargetRepositoryFullName = ev.GetRepo().GetFullName()

		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			result.EventType = provider.EventTypePush
			result.TargetBranch = strings.TrimPrefix(ref, "refs/heads/")

		case strings.HasPrefix(ref, "refs/tags/"):
			result.EventType = provider.EventTypeTagPush
			result.TagName = strings.TrimPrefix(ref, "refs/tags/")

		default:
			return nil, nil
		}

	default:
		return nil, nil
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

// normalizePRAction maps github pull-request actions to the normalized
// sub-event names. Github redelivers "synchronize" on every push to the PR
// branch, it maps to "updated".
// An empty result means the action is not relevant for automation.
func normalizePRAction(action string) string {
	switch action {
	case "opened":
		return provider.ActionOpened
	case "synchronize":
		return provider.ActionUpdated
	case "closed":
		return provider.ActionClosed
	case "reopened":
		return provider.ActionReopened
	default:
		return ""
	}
}

func envelopeLogFields(ev *provider.Event) []zap.Field {
	result := []zap.Field{
		zap.String("scm.event_type", ev.EventType),
	}

	if ev.Action != "" {
		result = append(result, zap.String("scm.action", ev.Action))
	}

	if ev.TargetRepositoryFullName != "" {
		result = append(result, logfields.Repository(ev.TargetRepositoryFullName))
	}

	if ev.CommitSHA != "" {
		result = append(result, logfields.Commit(ev.CommitSHA))
	}

	if ev.PullRequestNr != 0 {
		result = append(result, logfields.PullRequest(ev.PullRequestNr))
	}

	if ev.TagName != "" {
		result = append(result, logfields.Tag(ev.TagName))
	}

	if ev.APIEndpoint != "" {
		result = append(result, zap.String("scm.api_endpoint", ev.APIEndpoint))
	}

	return result
}
