package cfg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleConfig = `
http_server_listen_addr = ":8084"
github_webhook_endpoint = "/listener/github"
check_result_endpoint = "/api/check-results"
github_webhook_secret = "s3cret"
github_api_token = "token"
github_api_endpoint = "https://github.example.com"
log_format = "logfmt"
log_level = "info"
status_target_url = "https://stagecoord.example.com"

[build_backend]
url = "https://build.example.com"
user = "stagecoord"
password = "hunter2"

[database]
url = "postgres://stagecoord@localhost/stagecoord?sslmode=disable"

[redis]
addr = "localhost:6379"

[audit]
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "automation-runs"

[[workflow]]
name = "pr-staging"
event_source = "github"
filter_query = '.action == "opened"'

  [[workflow.step]]
  step = "branch"
  source_project = "network:utilities"
  source_package = "transmission"
  target_prefix = "devel:auto"

  [[workflow.step]]
  step = "set_flags"
  target_prefix = "devel:auto"

    [workflow.step.flags]
    publish = "disable"
`

func TestLoad(t *testing.T) {
	config, err := Load(strings.NewReader(exampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8084", config.HTTPListenAddr)
	assert.Equal(t, "/listener/github", config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, "/api/check-results", config.HTTPCheckResultEndpoint)
	assert.Equal(t, "https://github.example.com", config.GithubAPIEndpoint)
	assert.Equal(t, "https://build.example.com", config.BuildBackend.URL)
	assert.Equal(t, "localhost:6379", config.Redis.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, config.Audit.Brokers)
	assert.Equal(t, "automation-runs", config.Audit.Topic)

	require.Len(t, config.Workflows, 1)

	workflow := config.Workflows[0]
	assert.Equal(t, "pr-staging", workflow.Name)
	assert.Equal(t, "github", workflow.EventSource)
	assert.Equal(t, `.action == "opened"`, workflow.FilterQuery)

	require.Len(t, workflow.Steps, 2)
	assert.Equal(t, "branch", workflow.Steps[0]["step"])
	assert.Equal(t, "network:utilities", workflow.Steps[0]["source_project"])
	assert.Equal(t, "set_flags", workflow.Steps[1]["step"])

	flags, ok := workflow.Steps[1]["flags"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "disable", flags["publish"])
}

func TestMarshalRoundtrip(t *testing.T) {
	config, err := Load(strings.NewReader(exampleConfig))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, config.Marshal(&buf))

	reloaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, config, reloaded)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		config, err := Load(strings.NewReader(exampleConfig))
		require.NoError(t, err)

		return config
	}

	require.NoError(t, valid().Validate())

	config := valid()
	config.HTTPListenAddr = ""
	config.HTTPSListenAddr = ""
	assert.Error(t, config.Validate())

	config = valid()
	config.HTTPGithubWebhookEndpoint = ""
	assert.Error(t, config.Validate())

	config = valid()
	config.Database.URL = ""
	assert.Error(t, config.Validate())

	config = valid()
	config.BuildBackend.URL = ""
	assert.Error(t, config.Validate())
}
