package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"robline/internal/domain"
	"robline/internal/engine/auth"
	"robline/internal/events"
)

// Config models robline.yml.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Documents struct {
		Driver string `yaml:"driver"`
		Root   string `yaml:"root"`
		S3     struct {
			Bucket    string `yaml:"bucket"`
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			PathStyle bool   `yaml:"path_style"`
		} `yaml:"s3"`
	} `yaml:"documents"`
	Server struct {
		Addr              string `yaml:"addr"`
		BasePath          string `yaml:"base_path"`
		AllowActorHeaders bool   `yaml:"allow_actor_headers"`
	} `yaml:"server"`
	Auth struct {
		APIKeys []APIKey `yaml:"api_keys"`
	} `yaml:"auth"`
	Notifications struct {
		Webhooks []Webhook `yaml:"webhooks"`
		Kafka    Kafka     `yaml:"kafka"`
	} `yaml:"notifications"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

type APIKey struct {
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
	// sha256 hex of the key, see `rl apikey hash`
	Hash string `yaml:"hash"`
}

type Webhook struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Events  []string      `yaml:"events"`
	Timeout time.Duration `yaml:"timeout"`
}

type Kafka struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
	Events   []string `yaml:"events"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config.store.driver must be sqlite or memory, got %q", c.Store.Driver)
	}
	switch c.Documents.Driver {
	case "fs":
		if c.Documents.Root == "" {
			return fmt.Errorf("config.documents.root is required for the fs driver")
		}
	case "memory":
	case "s3":
		if c.Documents.S3.Bucket == "" {
			return fmt.Errorf("config.documents.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config.documents.driver must be fs, s3 or memory, got %q", c.Documents.Driver)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, k := range c.Auth.APIKeys {
		if strings.TrimSpace(k.Name) == "" {
			return fmt.Errorf("config.auth.api_keys[%d].name is required", i)
		}
		if _, err := auth.ResolveRole(k.Role); err != nil {
			return fmt.Errorf("config.auth.api_keys[%d]: %w", i, err)
		}
		if len(k.Hash) != 64 {
			return fmt.Errorf("config.auth.api_keys[%d].hash must be a sha256 hex digest", i)
		}
	}
	for i, w := range c.Notifications.Webhooks {
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url must be an http(s) url", i)
		}
		if err := checkEventTypes(w.Events); err != nil {
			return fmt.Errorf("config.notifications.webhooks[%d]: %w", i, err)
		}
	}
	if k := c.Notifications.Kafka; k.Enabled() {
		if k.Topic == "" {
			return fmt.Errorf("config.notifications.kafka.topic is required when brokers are set")
		}
		if err := checkEventTypes(k.Events); err != nil {
			return fmt.Errorf("config.notifications.kafka: %w", err)
		}
	}
	return nil
}

func checkEventTypes(types []string) error {
	known := EventTypes()
	for _, t := range types {
		if t == "" {
			return fmt.Errorf("empty event type")
		}
		if t == "*" {
			continue
		}
		ok := false
		for _, k := range known {
			if k == t || (strings.HasSuffix(t, ".*") && strings.HasPrefix(k, strings.TrimSuffix(t, "*"))) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown event type %s", t)
		}
	}
	return nil
}

// APIKeys converts the configured keys for the resolver.
func (c *Config) APIKeys() []auth.APIKey {
	out := make([]auth.APIKey, 0, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		out = append(out, auth.APIKey{Name: k.Name, Role: k.Role, Department: k.Department, Hash: strings.ToLower(k.Hash)})
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "robline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Marshal renders cfg back to YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Roles lists the roles an API key or token may carry.
func Roles() []string {
	var out []string
	for _, r := range domain.AllRoles() {
		if r != domain.RoleSystem {
			out = append(out, string(r))
		}
	}
	return out
}

// EventTypes lists the event types notifications can subscribe to.
func EventTypes() []string {
	return []string{
		events.TypeCreated,
		events.TypeTransitioned,
		events.TypeDocumentUpdated,
		events.TypeSLabelSubmitted,
		events.TypeUnserviceableReport,
	}
}

const defaultTemplate = `store:
  driver: sqlite

documents:
  driver: fs
  root: .robline/documents
  s3:
    bucket: ""
    region: ""
    endpoint: ""
    path_style: false

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allow_actor_headers: false

auth:
  # generate a hash with: rl apikey hash <key>
  api_keys: []

notifications:
  webhooks: []
  #  - url: https://hooks.example.com/robline
  #    secret: change-me
  #    events: [request.transitioned, request.material_store.*]
  #    timeout: 5s
  kafka:
    brokers: []
    topic: robline.requests
    client_id: robline
    events: ["*"]

log:
  level: info
  development: false
`
