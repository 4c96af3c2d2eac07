package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig feeds arbitrary YAML through LoadFrom. It must either fail
// or produce a configuration that passes validation.
func FuzzLoadConfig(f *testing.F) {
	f.Add(`server:
  port: 8080
  host: localhost`)
	f.Add(`server:
  port: "invalid_port"`)
	f.Add(`storage:
  backend: sqlite
  path: ../../etc/passwd`)
	f.Add(`mail:
  driver: smtp
  to: "a@example.com\r\nBcc: b@example.com"`)
	f.Add(`malformed: yaml: content`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, yamlContent string) {
		if len(yamlContent) > 50000 {
			t.Skip("Config content too large")
		}

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(yamlContent)); err != nil {
			return
		}

		cfg, err := LoadFrom(v)
		if err != nil {
			return
		}
		if err := validateConfig(cfg); err != nil {
			t.Errorf("LoadFrom returned a config that fails validation: %v", err)
		}
	})
}
