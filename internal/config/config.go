package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/smarthttp/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "smarthttp.json"

	// DefaultAddress is the default bind address.
	DefaultAddress = "127.0.0.1"

	// DefaultPort is the default listening port.
	DefaultPort = 5721

	// DefaultDomain is the host used when a request carries no Host header.
	DefaultDomain = "localhost"

	// DefaultWorkers is the default connection pool size.
	DefaultWorkers = 10

	// DefaultDocumentRoot is the default document root directory.
	DefaultDocumentRoot = "webroot"

	// DefaultPrivatePrefix is the path prefix unreachable from outside.
	DefaultPrivatePrefix = "/private"

	// DefaultScriptExtension marks files run as smart scripts.
	DefaultScriptExtension = "smscr"

	// DefaultMaxHeaderBytes bounds the request head.
	DefaultMaxHeaderBytes = 16 << 10

	// DefaultSessionTimeout is the sliding session lifetime.
	DefaultSessionTimeout = "10m"

	// DefaultCleanupInterval is how often expired sessions are reaped.
	DefaultCleanupInterval = "1m"
)

// Config represents the complete smarthttp.json configuration.
type Config struct {
	// Server contains listener and dispatch settings.
	Server ServerConfig `json:"server"`

	// Session contains session lifetime and persistence settings.
	Session SessionConfig `json:"session"`

	// Mime contains the extension to mime type table.
	Mime MimeConfig `json:"mime,omitempty"`

	// Workers contains the path to worker bindings.
	Workers WorkersConfig `json:"workers,omitempty"`

	// Admin contains the admin HTTP endpoint settings.
	Admin AdminConfig `json:"admin,omitempty"`

	// Dev contains development settings.
	Dev DevConfig `json:"dev,omitempty"`

	// Storage selects where the document root lives.
	Storage StorageConfig `json:"storage,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains listener and dispatch settings.
type ServerConfig struct {
	// Address is the IP address to bind.
	Address string `json:"address,omitempty"`

	// Port is the TCP port to listen on.
	Port int `json:"port,omitempty"`

	// Domain is the fallback host for requests without a Host header.
	Domain string `json:"domain,omitempty"`

	// Workers is the number of connections served concurrently.
	Workers int `json:"workers,omitempty"`

	// DocumentRoot is the directory holding static files and scripts.
	DocumentRoot string `json:"documentRoot,omitempty"`

	// PrivatePrefix is rejected with 404 unless reached by internal dispatch.
	PrivatePrefix string `json:"privatePrefix,omitempty"`

	// ScriptExtension is the file extension run as a smart script.
	ScriptExtension string `json:"scriptExtension,omitempty"`

	// MaxHeaderBytes bounds the request line plus headers.
	MaxHeaderBytes int `json:"maxHeaderBytes,omitempty"`

	// ReadTimeout bounds reading the request head (e.g. "30s"). Empty
	// means no deadline.
	ReadTimeout string `json:"readTimeout,omitempty"`
}

// SessionConfig contains session settings.
type SessionConfig struct {
	// Timeout is the sliding session lifetime (e.g. "10m").
	Timeout string `json:"timeout,omitempty"`

	// CleanupInterval is how often the reaper runs (e.g. "1m").
	CleanupInterval string `json:"cleanupInterval,omitempty"`

	// Store selects persistence: "" or "none", "memory", or
	// "sqlite:<path>".
	Store string `json:"store,omitempty"`
}

// MimeConfig contains the mime type table.
type MimeConfig struct {
	// File is a key = value properties file mapping extensions to types.
	File string `json:"file,omitempty"`

	// Types adds or overrides entries from File.
	Types map[string]string `json:"types,omitempty"`
}

// WorkersConfig contains worker bindings.
type WorkersConfig struct {
	// File is a key = value properties file mapping paths to worker names.
	File string `json:"file,omitempty"`

	// Bindings adds or overrides entries from File.
	Bindings map[string]string `json:"bindings,omitempty"`
}

// AdminConfig contains the admin endpoint settings.
type AdminConfig struct {
	// Address is the listen address of the admin router. Empty disables it.
	Address string `json:"address,omitempty"`
}

// DevConfig contains development settings.
type DevConfig struct {
	// Watch recompiles scripts on change and notifies reload clients.
	Watch bool `json:"watch,omitempty"`
}

// StorageConfig selects the document root backend.
type StorageConfig struct {
	// Kind is "dir" (default) or "s3".
	Kind string `json:"kind,omitempty"`

	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the key prefix inside the bucket.
	Prefix string `json:"prefix,omitempty"`

	// Region is the AWS region.
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint for compatible stores.
	Endpoint string `json:"endpoint,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads smarthttp.json from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from path. A ".properties" file is read in
// the key = value server format (server.port, server.documentRoot, ...).
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E500").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E501").Wrap(err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".properties") {
		props, err := ParseProperties(strings.NewReader(string(data)), path)
		if err != nil {
			return nil, err
		}
		if err := cfg.fromProperties(props); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E501").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the file is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// fromProperties maps server.properties keys onto the config.
func (c *Config) fromProperties(props map[string]string) error {
	intProp := func(key string, dst *int) error {
		v, ok := props[key]
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("E501").WithDetailf("%s: %q is not a number", key, v)
		}
		*dst = n
		return nil
	}

	c.Server.Address = props["server.address"]
	c.Server.Domain = props["server.domainName"]
	c.Server.DocumentRoot = props["server.documentRoot"]
	c.Mime.File = props["server.mimeConfig"]
	c.Workers.File = props["server.workers"]
	c.Admin.Address = props["admin.address"]
	c.Session.Store = props["session.store"]

	if err := intProp("server.port", &c.Server.Port); err != nil {
		return err
	}
	if err := intProp("server.workerThreads", &c.Server.Workers); err != nil {
		return err
	}

	// session.timeout is in seconds
	var seconds int
	if err := intProp("session.timeout", &seconds); err != nil {
		return err
	}
	if seconds > 0 {
		c.Session.Timeout = (time.Duration(seconds) * time.Second).String()
	}
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration as JSON to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E501").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E501").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Domain == "" {
		c.Server.Domain = DefaultDomain
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = DefaultWorkers
	}
	if c.Server.DocumentRoot == "" {
		c.Server.DocumentRoot = DefaultDocumentRoot
	}
	if c.Server.PrivatePrefix == "" {
		c.Server.PrivatePrefix = DefaultPrivatePrefix
	}
	if c.Server.ScriptExtension == "" {
		c.Server.ScriptExtension = DefaultScriptExtension
	}
	c.Server.ScriptExtension = strings.TrimPrefix(c.Server.ScriptExtension, ".")
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if c.Session.Timeout == "" {
		c.Session.Timeout = DefaultSessionTimeout
	}
	if c.Session.CleanupInterval == "" {
		c.Session.CleanupInterval = DefaultCleanupInterval
	}

	if c.Storage.Kind == "" {
		c.Storage.Kind = "dir"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E501").
			WithDetail("server.port must be between 0 and 65535")
	}
	if c.Server.Workers < 1 {
		return errors.New("E501").
			WithDetail("server.workers must be at least 1")
	}
	if !strings.HasPrefix(c.Server.PrivatePrefix, "/") {
		return errors.New("E501").
			WithDetailf("server.privatePrefix %q must start with /", c.Server.PrivatePrefix)
	}
	if c.Server.MaxHeaderBytes < 256 {
		return errors.New("E501").
			WithDetail("server.maxHeaderBytes must be at least 256")
	}
	if _, err := c.ReadTimeout(); err != nil {
		return err
	}
	if _, err := c.SessionTimeout(); err != nil {
		return err
	}
	if _, err := c.CleanupInterval(); err != nil {
		return err
	}
	if _, _, err := c.SessionStore(); err != nil {
		return err
	}

	switch c.Storage.Kind {
	case "dir":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("E501").WithDetail("storage.bucket is required for s3 storage")
		}
	default:
		return errors.New("E501").
			WithDetailf("storage.kind %q must be dir or s3", c.Storage.Kind)
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("E501").WithDetailf("%s: %v", field, err)
	}
	if d <= 0 {
		return 0, errors.New("E501").WithDetailf("%s must be positive", field)
	}
	return d, nil
}

// SessionTimeout returns the parsed session lifetime.
func (c *Config) SessionTimeout() (time.Duration, error) {
	return parseDuration("session.timeout", c.Session.Timeout)
}

// CleanupInterval returns the parsed reaper interval.
func (c *Config) CleanupInterval() (time.Duration, error) {
	return parseDuration("session.cleanupInterval", c.Session.CleanupInterval)
}

// ReadTimeout returns the parsed read deadline, or zero if unset.
func (c *Config) ReadTimeout() (time.Duration, error) {
	if c.Server.ReadTimeout == "" {
		return 0, nil
	}
	return parseDuration("server.readTimeout", c.Server.ReadTimeout)
}

// SessionStore splits session.store into its kind and argument.
// Kinds are "none", "memory", and "sqlite".
func (c *Config) SessionStore() (kind, arg string, err error) {
	kind, arg, _ = strings.Cut(c.Session.Store, ":")
	switch kind {
	case "", "none":
		return "none", "", nil
	case "memory":
		return kind, "", nil
	case "sqlite":
		if arg == "" {
			return "", "", errors.New("E504").WithDetail("sqlite store needs a path, e.g. sqlite:sessions.db")
		}
		if arg != ":memory:" {
			arg = c.resolve(arg)
		}
		return kind, arg, nil
	}
	return "", "", errors.New("E504").WithDetailf("%q", c.Session.Store)
}

// ListenAddress returns host:port for the main listener.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// DocumentRootPath returns the absolute document root directory.
func (c *Config) DocumentRootPath() string {
	return c.resolve(c.Server.DocumentRoot)
}

// MimeFilePath returns the mime table path, or "" if none is configured.
func (c *Config) MimeFilePath() string {
	return c.resolve(c.Mime.File)
}

// WorkersFilePath returns the worker bindings path, or "".
func (c *Config) WorkersFilePath() string {
	return c.resolve(c.Workers.File)
}

// MimeTypes loads the mime file, if any, and overlays Mime.Types.
func (c *Config) MimeTypes() (map[string]string, error) {
	types := map[string]string{}
	if path := c.MimeFilePath(); path != "" {
		props, err := LoadProperties(path)
		if err != nil {
			return nil, err
		}
		for ext, mime := range props {
			types[strings.ToLower(strings.TrimPrefix(ext, "."))] = mime
		}
	}
	for ext, mime := range c.Mime.Types {
		types[strings.ToLower(strings.TrimPrefix(ext, "."))] = mime
	}
	return types, nil
}

// WorkerBindings loads the workers file, if any, and overlays
// Workers.Bindings.
func (c *Config) WorkerBindings() (map[string]string, error) {
	bindings := map[string]string{}
	if path := c.WorkersFilePath(); path != "" {
		props, err := LoadProperties(path)
		if err != nil {
			return nil, err
		}
		for p, name := range props {
			bindings[p] = name
		}
	}
	for p, name := range c.Workers.Bindings {
		bindings[p] = name
	}
	return bindings, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the one holding
// smarthttp.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E500").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the nearest project root.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}
