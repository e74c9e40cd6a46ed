// Package scmclt provides the client that reports commit statuses back to
// the source-control provider.
package scmclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/stagecoord/internal/retryerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "scm_client"

// ErrUnauthorized is returned when the provider rejects the configured API
// credential. It is never retryable, the operator has to rotate the token.
var ErrUnauthorized = errors.New("scm rejected the api credential")

// Status values accepted by ReportStatus.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

// Client posts commit statuses and answers pull-request queries.
// Methods return a retryerr.RetryableError when an operation can be retried,
// e.g. when the API rate limit is exceeded.
type Client struct {
	restClt     *github.Client
	graphQLClt  *githubv4.Client
	apiEndpoint string
	logger      *zap.Logger
}

type option func(*Client)

// WithAPIEndpoint addresses a github enterprise instance via its base url
// instead of the public github.com api. An empty url keeps the default.
func WithAPIEndpoint(url string) option {
	return func(clt *Client) {
		clt.apiEndpoint = url
	}
}

// New returns a new client for the github api.
func New(oauthAPIToken string, opts ...option) (*Client, error) {
	httpClient := newHTTPClient(oauthAPIToken)

	clt := Client{
		logger: zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&clt)
	}

	clt.restClt = github.NewClient(httpClient)
	clt.graphQLClt = githubv4.NewClient(httpClient)

	if clt.apiEndpoint != "" {
		var err error

		clt.restClt, err = clt.restClt.WithEnterpriseURLs(clt.apiEndpoint, clt.apiEndpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid github api endpoint %q: %w", clt.apiEndpoint, err)
		}

		graphQLURL := strings.TrimSuffix(clt.apiEndpoint, "/") + "/api/graphql"
		clt.graphQLClt = githubv4.NewEnterpriseClient(graphQLURL, httpClient)
	}

	return &clt, nil
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// ReportStatus posts a named commit status for the given commit ref.
// state must be one of the Status* constants.
func (clt *Client) ReportStatus(ctx context.Context, owner, repo, commitRef, state, statusContext, targetURL string) error {
	status := github.RepoStatus{
		State:   &state,
		Context: &statusContext,
	}

	if targetURL != "" {
		status.TargetURL = &targetURL
	}

	_, _, err := clt.restClt.Repositories.CreateStatus(ctx, owner, repo, commitRef, &status)
	return clt.wrapRetryableErrors(err)
}

// PRMerged reports whether the pull request was merged.
// Closed-event deliveries can race with the merge itself, steps that act on
// merged PRs verify the merge state via this query instead of trusting the
// payload flag alone.
func (clt *Client) PRMerged(ctx context.Context, owner, repo string, prNumber int) (bool, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				Merged githubv4.Boolean
			} `graphql:"pullRequest(number: $prNumber)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	vars := map[string]any{
		"owner":    githubv4.String(owner),
		"repo":     githubv4.String(repo),
		"prNumber": githubv4.Int(prNumber),
	}

	if err := clt.graphQLClt.Query(ctx, &query, vars); err != nil {
		return false, clt.wrapRetryableErrors(err)
	}

	return bool(query.Repository.PullRequest.Merged), nil
}

func (clt *Client) wrapRetryableErrors(err error) error {
	if err == nil {
		return nil
	}

	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return retryerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.ErrorResponse:
		if v.Response.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrUnauthorized, v.Message)
		}

		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return retryerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}
