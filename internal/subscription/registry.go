// Package subscription keeps the registry of build-result subscriptions.
//
// Automation steps subscribe target projects to the build results of their
// repositories; the build-completion consumer reads the registry to decide
// which results to forward as commit statuses. The registry lives in redis
// so that it survives restarts and is shared between replicas.
package subscription

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
)

const loggerName = "subscription"

const defKeyPrefix = "stagecoord"

// Target is one subscribed (repository, architecture) of a project.
type Target struct {
	Repository   string
	Architecture string
}

func (t Target) String() string {
	if t.Architecture == "" {
		return t.Repository
	}

	return t.Repository + "/" + t.Architecture
}

// Registry is the redis-backed subscription store.
// Subscribing is idempotent, members are sets.
type Registry struct {
	rdb       redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

type option func(*Registry)

func WithKeyPrefix(prefix string) option {
	return func(r *Registry) {
		r.keyPrefix = prefix
	}
}

func NewRegistry(rdb redis.UniversalClient, opts ...option) *Registry {
	r := Registry{
		rdb:       rdb,
		keyPrefix: defKeyPrefix,
		logger:    zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&r)
	}

	return &r
}

// Subscribe registers the (repository, architecture) of the project.
func (r *Registry) Subscribe(ctx context.Context, project, repository, architecture string) error {
	if project == "" || repository == "" {
		return fmt.Errorf("project and repository must not be empty")
	}

	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, r.projectsKey(), project)
	pipe.SAdd(ctx, r.projectKey(project), encodeTarget(repository, architecture))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing subscription failed: %w", err)
	}

	r.logger.Debug("subscription stored",
		logfields.Event("subscription_stored"),
		logfields.Project(project),
		zap.String("repository", repository),
		zap.String("architecture", architecture),
	)

	return nil
}

// Unsubscribe removes all subscriptions of the project.
func (r *Registry) Unsubscribe(ctx context.Context, project string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.projectKey(project))
	pipe.SRem(ctx, r.projectsKey(), project)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing subscriptions failed: %w", err)
	}

	r.logger.Debug("subscriptions removed",
		logfields.Event("subscriptions_removed"),
		logfields.Project(project),
	)

	return nil
}

// Targets returns the subscribed targets of the project, sorted.
func (r *Registry) Targets(ctx context.Context, project string) ([]Target, error) {
	members, err := r.rdb.SMembers(ctx, r.projectKey(project)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading subscriptions failed: %w", err)
	}

	result := make([]Target, 0, len(members))

	for _, member := range members {
		repository, architecture := decodeTarget(member)
		result = append(result, Target{Repository: repository, Architecture: architecture})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Repository != result[j].Repository {
			return result[i].Repository < result[j].Repository
		}

		return result[i].Architecture < result[j].Architecture
	})

	return result, nil
}

// SubscribedProjects returns all projects with at least one subscription,
// sorted.
func (r *Registry) SubscribedProjects(ctx context.Context) ([]string, error) {
	projects, err := r.rdb.SMembers(ctx, r.projectsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading subscribed projects failed: %w", err)
	}

	sort.Strings(projects)

	return projects, nil
}

func (r *Registry) projectsKey() string {
	return r.keyPrefix + ":subscriptions"
}

func (r *Registry) projectKey(project string) string {
	return r.keyPrefix + ":subscriptions:" + project
}

// encodeTarget joins repository and architecture with a separator that
// neither may contain.
func encodeTarget(repository, architecture string) string {
	return repository + "|" + architecture
}

func decodeTarget(member string) (repository, architecture string) {
	repository, architecture, _ = strings.Cut(member, "|")
	return repository, architecture
}
