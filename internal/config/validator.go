package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextChat - pilot chat needs the backend, a token and a
	// callback address
	ValidationContextChat ValidationContext = "chat"
	// ValidationContextLogin - pilot login only needs the backend address
	ValidationContextLogin ValidationContext = "login"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ✗ %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ! %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	return c.ValidateWithMode(ctx, c.ResolvedMode())
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextChat:
		c.validateBackend(result, mode)
		c.validateToken(result, true, mode)
		c.validateCallback(result)
		c.validateChannel(result)
	case ValidationContextLogin:
		c.validateBackend(result, mode)
	case ValidationContextAll:
		c.validateBackend(result, mode)
		c.validateToken(result, false, mode)
		c.validateCallback(result)
		c.validateChannel(result)
	}

	return result
}

func (c *Config) validateBackend(result *ValidationResult, mode DeploymentMode) {
	checkURL(result, "backend.url", c.Backend.URL, mode, "ws", "wss")
	checkURL(result, "backend.api_base", c.Backend.APIBase, mode, "http", "https")
}

func checkURL(result *ValidationResult, key, raw string, mode DeploymentMode, plain, secure string) {
	if raw == "" {
		result.AddError("%s is required but not set", key)
		return
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		result.AddError("%s is not a valid URL: %q", key, raw)
		return
	}

	switch u.Scheme {
	case secure:
	case plain:
		if mode.RequiresSecureTransport() && !isLoopback(u.Hostname()) {
			result.AddError("%s must use %s:// in %s mode (%s)", key, secure, mode, mode.Description())
		}
	default:
		result.AddError("%s must be a %s:// or %s:// URL, got %q", key, plain, secure, u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) validateToken(result *ValidationResult, required bool, mode DeploymentMode) {
	if c.Backend.Token != "" {
		return
	}
	if required {
		result.AddError("no backend token. Run: pilot login (or set PILOT_TOKEN via %s)", mode.ConfigSource())
	} else {
		result.AddWarning("no backend token configured")
	}
}

func (c *Config) validateCallback(result *ValidationResult) {
	host, _, err := net.SplitHostPort(c.Callback.Addr)
	if err != nil {
		result.AddError("callback.addr must be host:port, got %q", c.Callback.Addr)
		return
	}
	if host != "" && !isLoopback(host) {
		result.AddWarning("callback.addr %q is reachable from other machines", c.Callback.Addr)
	}
	if c.Callback.HoldTimeout <= 0 {
		result.AddError("callback.hold_timeout must be positive")
	}
}

func (c *Config) validateChannel(result *ValidationResult) {
	if c.Channel.ReconnectInterval <= 0 {
		result.AddError("channel.reconnect_interval must be positive")
	}
	if c.Channel.WriteTimeout <= 0 {
		result.AddError("channel.write_timeout must be positive")
	}
}
