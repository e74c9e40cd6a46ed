package subscription_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/subscription"
)

func newRegistry(t *testing.T) *subscription.Registry {
	t.Helper()

	srv := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return subscription.NewRegistry(rdb)
}

func TestSubscribeAndTargets(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Subscribe(ctx, "devel:auto:acme:transmission:PR-17", "standard", "x86_64"))
	require.NoError(t, reg.Subscribe(ctx, "devel:auto:acme:transmission:PR-17", "standard", "aarch64"))
	require.NoError(t, reg.Subscribe(ctx, "devel:auto:acme:transmission:PR-17", "images", ""))

	targets, err := reg.Targets(ctx, "devel:auto:acme:transmission:PR-17")
	require.NoError(t, err)

	assert.Equal(t, []subscription.Target{
		{Repository: "images"},
		{Repository: "standard", Architecture: "aarch64"},
		{Repository: "standard", Architecture: "x86_64"},
	}, targets)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Subscribe(ctx, "devel:auto:p", "standard", "x86_64"))
	}

	targets, err := reg.Targets(ctx, "devel:auto:p")
	require.NoError(t, err)
	assert.Len(t, targets, 1)

	projects, err := reg.SubscribedProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"devel:auto:p"}, projects)
}

func TestSubscribeRejectsEmptyKeys(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	assert.Error(t, reg.Subscribe(ctx, "", "standard", "x86_64"))
	assert.Error(t, reg.Subscribe(ctx, "devel:auto:p", "", "x86_64"))
}

func TestUnsubscribeRemovesAllTargets(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Subscribe(ctx, "devel:auto:p1", "standard", "x86_64"))
	require.NoError(t, reg.Subscribe(ctx, "devel:auto:p1", "images", ""))
	require.NoError(t, reg.Subscribe(ctx, "devel:auto:p2", "standard", "x86_64"))

	require.NoError(t, reg.Unsubscribe(ctx, "devel:auto:p1"))

	targets, err := reg.Targets(ctx, "devel:auto:p1")
	require.NoError(t, err)
	assert.Empty(t, targets)

	projects, err := reg.SubscribedProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"devel:auto:p2"}, projects)
}

func TestUnsubscribeUnknownProjectIsANoop(t *testing.T) {
	reg := newRegistry(t)

	assert.NoError(t, reg.Unsubscribe(context.Background(), "devel:auto:unknown"))
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "standard/x86_64",
		subscription.Target{Repository: "standard", Architecture: "x86_64"}.String())
	assert.Equal(t, "images",
		subscription.Target{Repository: "images"}.String())
}
