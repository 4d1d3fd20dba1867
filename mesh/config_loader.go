package mesh

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied by LoadConfig for unset fields
const (
	DefaultHTTPPort        = 8080
	DefaultPublishPrefix   = "probemesh"
	DefaultRenderScale     = 0.25
	DefaultRenderPadding   = 100.0
	DefaultVectorDPI       = 150.0
	DefaultRegisterWorkers = 1
)

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Relative input/cache/store paths are resolved against the config file's directory
	base := filepath.Dir(path)
	if !IsRemoteInput(config.Input) {
		config.Input = resolvePath(base, config.Input)
	}
	config.Registration.CachePath = resolvePath(base, config.Registration.CachePath)
	config.Store.Path = resolvePath(base, config.Store.Path)

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Registration.Workers == 0 {
		c.Registration.Workers = DefaultRegisterWorkers
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if c.Render.Scale == 0 {
		c.Render.Scale = DefaultRenderScale
	}
	if c.Render.Padding == 0 {
		c.Render.Padding = DefaultRenderPadding
	}
	if c.Render.Resolution == 0 {
		c.Render.Resolution = DefaultVectorDPI
	}
}

// Validate checks field ranges and that the service has some scanner source.
func (c *Config) Validate() error {
	if c.Input == "" && c.MQTT.ReportTopic == "" {
		return fmt.Errorf("either input or mqtt.reportTopic is required")
	}
	if c.MQTT.ReportTopic != "" && c.MQTT.Broker == "" && os.Getenv("MQTT_BROKER") == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.reportTopic is set")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Registration.Workers < 0 {
		return fmt.Errorf("registration.workers must be >= 0, got %d", c.Registration.Workers)
	}
	if c.Registration.MaxPasses < 0 {
		return fmt.Errorf("registration.maxPasses must be >= 0, got %d", c.Registration.MaxPasses)
	}
	if c.PollSeconds < 0 {
		return fmt.Errorf("pollSeconds must be >= 0, got %d", c.PollSeconds)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.Render.Scale < 0 || c.Render.Padding < 0 || c.Render.Resolution < 0 {
		return fmt.Errorf("render settings must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
