package server

import (
	"strings"
	"time"
)

// DefaultMimeType is sent for files with an unknown or missing extension.
const DefaultMimeType = "application/octet-stream"

// Config holds server settings.
type Config struct {
	// Domain is the session host for requests without a Host header.
	// Default: "localhost".
	Domain string

	// Workers is the number of connections handled at once. Default: 10.
	Workers int

	// PrivatePrefix is only reachable through internal dispatch.
	// Default: "/private".
	PrivatePrefix string

	// ScriptExtension is the file extension executed as a script, without
	// the dot. Default: "smscr".
	ScriptExtension string

	// MaxHeaderBytes bounds the request line plus headers. Default: 16KB.
	MaxHeaderBytes int

	// ReadTimeout bounds reading the request head. Zero means no deadline.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response. Zero means no deadline.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds Run's graceful shutdown. Default: 10 seconds.
	ShutdownTimeout time.Duration

	// MimeTypes maps lowercase extensions (no dot) to content types.
	MimeTypes map[string]string

	// DevScriptURL, when set, is loaded by a <script> tag appended to every
	// text/html page produced by a top-level script.
	DevScriptURL string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Domain == "" {
		c.Domain = "localhost"
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.PrivatePrefix == "" {
		c.PrivatePrefix = "/private"
	}
	c.PrivatePrefix = "/" + strings.Trim(c.PrivatePrefix, "/")
	if c.ScriptExtension == "" {
		c.ScriptExtension = "smscr"
	}
	c.ScriptExtension = strings.TrimPrefix(c.ScriptExtension, ".")
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 16 << 10
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	types := make(map[string]string, len(c.MimeTypes))
	for ext, mime := range c.MimeTypes {
		types[strings.ToLower(strings.TrimPrefix(ext, "."))] = mime
	}
	c.MimeTypes = types
}

// mimeType returns the content type for an extension.
func (c *Config) mimeType(ext string) string {
	if mime, ok := c.MimeTypes[strings.ToLower(ext)]; ok && ext != "" {
		return mime
	}
	return DefaultMimeType
}

// isPrivate reports whether path lies under the private prefix.
func (c *Config) isPrivate(path string) bool {
	return path == c.PrivatePrefix || strings.HasPrefix(path, c.PrivatePrefix+"/")
}
