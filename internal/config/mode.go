package config

import (
	"os"
	"strings"
)

// DeploymentMode represents the deployment context
type DeploymentMode string

const (
	// ModeDevelopment is a source checkout talking to a local backend
	// - plain ws:// and http:// endpoints are fine
	// - .env files are expected
	ModeDevelopment DeploymentMode = "development"

	// ModePackaged is an installed binary used interactively
	// - credentials via env vars, keychain, or interactive prompt
	// - backend must be reached over TLS
	ModePackaged DeploymentMode = "packaged"

	// ModeCI is non-interactive execution
	// - all credentials from environment variables
	// - no prompts, fail fast
	ModeCI DeploymentMode = "ci"
)

func parseMode(s string) (DeploymentMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return ModeDevelopment, true
	case "packaged", "pkg", "production", "prod":
		return ModePackaged, true
	case "ci", "cicd":
		return ModeCI, true
	}
	return "", false
}

// DetectMode determines the deployment context based on environment
func DetectMode() DeploymentMode {
	if m, ok := parseMode(os.Getenv("PILOT_MODE")); ok {
		return m
	}

	if isCI() {
		return ModeCI
	}

	// Development mode indicators
	for _, marker := range []string{".env", "go.mod", "Makefile"} {
		if _, err := os.Stat(marker); err == nil {
			return ModeDevelopment
		}
	}

	return ModePackaged
}

// isCI detects if running in a CI/CD environment
func isCI() bool {
	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"BUILDKITE",
		"JENKINS_URL",
		"TF_BUILD",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}

// String returns the string representation of the mode
func (m DeploymentMode) String() string {
	return string(m)
}

// RequiresSecureTransport returns true if the backend must use TLS
func (m DeploymentMode) RequiresSecureTransport() bool {
	return m == ModePackaged || m == ModeCI
}

// AllowsInteractivePrompts returns true if interactive prompts are allowed
func (m DeploymentMode) AllowsInteractivePrompts() bool {
	return m != ModeCI
}

// Description returns a human-readable description of the mode
func (m DeploymentMode) Description() string {
	switch m {
	case ModeDevelopment:
		return "Local development"
	case ModePackaged:
		return "Packaged installation"
	case ModeCI:
		return "CI/CD pipeline"
	default:
		return "Unknown mode"
	}
}

// ConfigSource returns where credentials should come from
func (m DeploymentMode) ConfigSource() string {
	switch m {
	case ModeDevelopment:
		return ".env file, environment variables, or keychain"
	case ModePackaged:
		return "environment variables, keychain, or interactive login"
	case ModeCI:
		return "environment variables only"
	default:
		return "unknown"
	}
}
