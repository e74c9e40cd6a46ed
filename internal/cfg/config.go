// Package cfg loads the TOML configuration file.
package cfg

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml"
)

type Config struct {
	HTTPListenAddr            string `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string `toml:"https_server_listen_addr"`
	HTTPSCertFile             string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	HTTPCheckResultEndpoint   string `toml:"check_result_endpoint"`
	GithubWebHookSecret       string `toml:"github_webhook_secret"`
	GithubAPIToken            string `toml:"github_api_token"`
	// GithubAPIEndpoint is the base url of a github enterprise instance.
	// When empty the public github.com api is used.
	GithubAPIEndpoint string `toml:"github_api_endpoint"`

	BuildBackend BuildBackend `toml:"build_backend"`
	Database     Database     `toml:"database"`
	Redis        Redis        `toml:"redis"`
	Audit        Audit        `toml:"audit"`

	LogFormat  string `toml:"log_format"`
	LogLevel   string `toml:"log_level"`
	LogTimeKey string `toml:"log_time_key"`

	// StatusTargetURL is the base url commit statuses posted to the SCM
	// link back to.
	StatusTargetURL string `toml:"status_target_url"`

	Workflows []*Workflow `toml:"workflow"`
}

// BuildBackend addresses the build backend api.
type BuildBackend struct {
	URL      string `toml:"url"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type Database struct {
	// URL is a lib/pq connection string.
	URL string `toml:"url"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Audit configures the kafka stream finalized automation runs are published
// to. Publishing is disabled when no brokers are configured.
type Audit struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type Trigger struct {
	EventSource string `toml:"event_source" default:"github"`
	FilterQuery string `toml:"filter_query"`
}

type Workflow struct {
	Name string `toml:"name"`
	Trigger
	Steps []map[string]interface{} `toml:"step"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}

// Validate checks the fields the process cannot start without.
func (r *Config) Validate() error {
	if r.HTTPListenAddr == "" && r.HTTPSListenAddr == "" {
		return fmt.Errorf("http_server_listen_addr and https_server_listen_addr are both empty")
	}

	if r.HTTPGithubWebhookEndpoint == "" {
		return fmt.Errorf("missing field: 'github_webhook_endpoint'")
	}

	if r.Database.URL == "" {
		return fmt.Errorf("missing field: 'database.url'")
	}

	if r.BuildBackend.URL == "" {
		return fmt.Errorf("missing field: 'build_backend.url'")
	}

	return nil
}
