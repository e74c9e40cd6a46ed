package buildclt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagecoord/internal/retryerr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(srv.URL, "stagecoord", "token")
}

func TestGetPackage(t *testing.T) {
	clt := newTestClient(t, func(resp http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/source/devel:auto/transmission", req.URL.Path)

		user, _, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "stagecoord", user)

		_ = json.NewEncoder(resp).Encode(Package{
			Project: "devel:auto",
			Package: "transmission",
			BranchedFrom: &PackageRef{
				Project: "network:utilities",
				Package: "transmission",
			},
		})
	})

	pkg, err := clt.GetPackage(context.Background(), "devel:auto", "transmission")
	require.NoError(t, err)

	assert.Equal(t, "devel:auto", pkg.Project)
	require.NotNil(t, pkg.BranchedFrom)
	assert.Equal(t, "network:utilities", pkg.BranchedFrom.Project)
}

func TestResponseErrorMapping(t *testing.T) {
	testcases := []struct {
		status      int
		expectedErr error
	}{
		{status: http.StatusNotFound, expectedErr: ErrNotFound},
		{status: http.StatusForbidden, expectedErr: ErrNoPermission},
		{status: http.StatusUnauthorized, expectedErr: ErrNoPermission},
		{status: http.StatusConflict, expectedErr: ErrAlreadyExists},
	}

	for _, tc := range testcases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			clt := newTestClient(t, func(resp http.ResponseWriter, _ *http.Request) {
				http.Error(resp, "", tc.status)
			})

			_, err := clt.GetPackage(context.Background(), "p", "pkg")
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestServerErrorsAreRetryable(t *testing.T) {
	clt := newTestClient(t, func(resp http.ResponseWriter, _ *http.Request) {
		http.Error(resp, "", http.StatusServiceUnavailable)
	})

	err := clt.Rebuild(context.Background(), "p", "pkg")
	require.Error(t, err)

	var retryable *retryerr.RetryableError
	assert.ErrorAs(t, err, &retryable)
}

func TestTransportFailuresAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connecting will fail

	clt := New(srv.URL, "stagecoord", "token")

	err := clt.CreatePackage(context.Background(), "p", "pkg")
	require.Error(t, err)

	var retryable *retryerr.RetryableError
	assert.ErrorAs(t, err, &retryable)
}

func TestBranchPackagePostsSourceAndTarget(t *testing.T) {
	clt := newTestClient(t, func(resp http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "branch", req.URL.Query().Get("cmd"))

		var body map[string]PackageRef
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		assert.Equal(t, PackageRef{Project: "network:utilities", Package: "transmission"}, body["source"])
		assert.Equal(t, PackageRef{Project: "devel:auto", Package: "transmission"}, body["target"])

		resp.WriteHeader(http.StatusCreated)
	})

	err := clt.BranchPackage(context.Background(),
		PackageRef{Project: "network:utilities", Package: "transmission"},
		PackageRef{Project: "devel:auto", Package: "transmission"},
	)
	require.NoError(t, err)
}

func TestWriteLinkWritesLinkFile(t *testing.T) {
	clt := newTestClient(t, func(resp http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/source/devel:auto/transmission/_link", req.URL.Path)

		var body map[string]PackageRef
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "network:utilities", body["link"].Project)

		resp.WriteHeader(http.StatusOK)
	})

	err := clt.WriteLink(context.Background(), "devel:auto", "transmission",
		PackageRef{Project: "network:utilities", Package: "transmission"})
	require.NoError(t, err)
}

func TestCurrentReport(t *testing.T) {
	clt := newTestClient(t, func(resp http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/source/staging:a/_publish/standard/x86_64", req.URL.Path)

		_ = json.NewEncoder(resp).Encode(PublishReport{
			Project:        "staging:a",
			Repository:     "standard",
			Architecture:   "x86_64",
			UUID:           "uuid-1",
			RequiredChecks: []string{"openqa"},
		})
	})

	report, err := clt.CurrentReport(context.Background(), "staging:a", "standard", "x86_64")
	require.NoError(t, err)

	assert.Equal(t, "uuid-1", report.UUID)
	assert.Equal(t, []string{"openqa"}, report.RequiredChecks)
}

func TestUnexpectedStatusIsNotRetryable(t *testing.T) {
	clt := newTestClient(t, func(resp http.ResponseWriter, _ *http.Request) {
		resp.WriteHeader(http.StatusTeapot)
	})

	err := clt.DeleteProject(context.Background(), "p")
	require.Error(t, err)

	var retryable *retryerr.RetryableError
	assert.False(t, errors.As(err, &retryable))
}
