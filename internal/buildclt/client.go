// Package buildclt provides the client for the build backend that stores
// package sources and schedules builds.
// The backend is addressed via a small JSON-over-HTTP api, the package maps
// its response codes onto the error values the automation steps dispatch on.
package buildclt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/retryerr"
)

const loggerName = "build_client"

const defaultHTTPTimeout = time.Minute

var (
	// ErrNotFound is returned when a project, package or publish report
	// does not exist at the backend.
	ErrNotFound = errors.New("not found")
	// ErrNoPermission is returned when the acting identity lacks rights
	// on the addressed project or package.
	ErrNoPermission = errors.New("no permission")
	// ErrAlreadyExists is returned for creates that lost a race against
	// an identical create.
	ErrAlreadyExists = errors.New("already exists")
)

type PackageRef struct {
	Project string `json:"project"`
	Package string `json:"package"`
}

func (r PackageRef) String() string {
	return r.Project + "/" + r.Package
}

// Package describes one package at the backend.
// BranchedFrom is set when the package was created by branching another
// package, it identifies the branch source.
type Package struct {
	Project      string      `json:"project"`
	Package      string      `json:"package"`
	BranchedFrom *PackageRef `json:"branched_from,omitempty"`
}

type RepositoryPath struct {
	Project    string `json:"project"`
	Repository string `json:"repository"`
}

// Repository is one build repository of a project.
type Repository struct {
	Name          string           `json:"name"`
	Architectures []string         `json:"architectures"`
	Paths         []RepositoryPath `json:"paths,omitempty"`
}

// PublishReport identifies the latest build of one
// (project, repository, architecture). Its UUID changes on every rebuild.
type PublishReport struct {
	Project        string   `json:"project"`
	Repository     string   `json:"repository"`
	Architecture   string   `json:"architecture,omitempty"`
	UUID           string   `json:"uuid"`
	RequiredChecks []string `json:"required_checks,omitempty"`
}

type Client struct {
	baseURL  string
	username string
	token    string
	clt      *http.Client
	logger   *zap.Logger
}

type option func(*Client)

func WithHTTPClient(clt *http.Client) option {
	return func(c *Client) {
		c.clt = clt
	}
}

func New(baseURL, username, token string, opts ...option) *Client {
	c := Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		token:    token,
		logger:   zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&c)
	}

	if c.clt == nil {
		c.clt = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &c
}

// GetPackage returns the package metadata or ErrNotFound.
func (c *Client) GetPackage(ctx context.Context, project, pkg string) (*Package, error) {
	var result Package

	err := c.do(ctx, http.MethodGet, c.pkgPath(project, pkg), nil, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// BranchPackage branches source into the destination package, creating the
// destination project if needed.
// If the destination already exists ErrAlreadyExists is returned, callers
// decide whether that is an error or a reuse.
func (c *Client) BranchPackage(ctx context.Context, src, dst PackageRef) error {
	body := map[string]any{
		"source": src,
		"target": dst,
	}

	return c.do(ctx, http.MethodPost, c.pkgPath(src.Project, src.Package)+"?cmd=branch", body, nil)
}

// CreatePackage creates an empty package, creating the project if needed.
func (c *Client) CreatePackage(ctx context.Context, project, pkg string) error {
	return c.do(ctx, http.MethodPut, c.pkgPath(project, pkg), map[string]any{}, nil)
}

// WriteFile creates or replaces a file in the package.
func (c *Client) WriteFile(ctx context.Context, project, pkg, filename string, content []byte) error {
	path := c.pkgPath(project, pkg) + "/" + url.PathEscape(filename)
	return c.doRaw(ctx, http.MethodPut, path, content, nil)
}

// WriteLink writes the link file that makes (project, pkg) a reference to
// the source package.
func (c *Client) WriteLink(ctx context.Context, project, pkg string, src PackageRef) error {
	link, err := json.Marshal(map[string]any{"link": src})
	if err != nil {
		return err
	}

	return c.WriteFile(ctx, project, pkg, "_link", link)
}

// Repositories returns the build repositories configured for the project.
func (c *Client) Repositories(ctx context.Context, project string) ([]Repository, error) {
	var result []Repository

	err := c.do(ctx, http.MethodGet, c.projPath(project)+"/_repositories", nil, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SetRepositories replaces the build repositories of the project.
func (c *Client) SetRepositories(ctx context.Context, project string, repos []Repository) error {
	return c.do(ctx, http.MethodPut, c.projPath(project)+"/_repositories", repos, nil)
}

// DeleteProject soft-deletes the project, it can be restored via
// RestoreProject until the backend expires it.
func (c *Client) DeleteProject(ctx context.Context, project string) error {
	return c.do(ctx, http.MethodDelete, c.projPath(project), nil, nil)
}

// RestoreProject restores a soft-deleted project.
func (c *Client) RestoreProject(ctx context.Context, project string) error {
	return c.do(ctx, http.MethodPost, c.projPath(project)+"?cmd=restore", nil, nil)
}

// Rebuild triggers a rebuild of the package in all repositories.
func (c *Client) Rebuild(ctx context.Context, project, pkg string) error {
	return c.do(ctx, http.MethodPost, c.pkgPath(project, pkg)+"?cmd=rebuild", nil, nil)
}

// SetFlag upserts a build/publish flag on the project.
// repository and architecture may be empty to address all.
func (c *Client) SetFlag(ctx context.Context, project, flag, status, repository, architecture string) error {
	body := map[string]string{
		"flag":   flag,
		"status": status,
	}

	if repository != "" {
		body["repository"] = repository
	}

	if architecture != "" {
		body["architecture"] = architecture
	}

	return c.do(ctx, http.MethodPost, c.projPath(project)+"?cmd=set_flag", body, nil)
}

// CurrentReport returns the publish report of the latest build of
// (project, repository, architecture).
func (c *Client) CurrentReport(ctx context.Context, project, repository, architecture string) (*PublishReport, error) {
	path := fmt.Sprintf("%s/_publish/%s", c.projPath(project), url.PathEscape(repository))
	if architecture != "" {
		path += "/" + url.PathEscape(architecture)
	}

	var result PublishReport

	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) projPath(project string) string {
	return "/source/" + url.PathEscape(project)
}

func (c *Client) pkgPath(project, pkg string) string {
	return c.projPath(project) + "/" + url.PathEscape(pkg)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body failed: %w", err)
		}
	}

	return c.doRaw(ctx, method, path, payload, result)
}

func (c *Client) doRaw(ctx context.Context, method, path string, payload []byte, result any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	resp, err := c.clt.Do(req)
	if err != nil {
		// transport failure, the backend might recover
		return retryerr.NewRetryableAnytimeError(err)
	}
	defer resp.Body.Close()

	if err := responseError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response of %s %s failed: %w", method, path, err)
	}

	return nil
}

func responseError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return ErrNoPermission

	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyExists

	case resp.StatusCode >= 500:
		return retryerr.NewRetryableAnytimeError(fmt.Errorf("build backend unavailable: %s", resp.Status))

	default:
		return fmt.Errorf("build backend returned unexpected status: %s", resp.Status)
	}
}
