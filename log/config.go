package log

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"moul.io/zapfilter"
)

// Config describes per logger level settings as read from a yaml file.
//
//	defaultLevel: info
//	loggers:
//	  ingest: debug
//	  race: debug
type Config struct {
	DefaultLevel string            `yaml:"defaultLevel"`
	Loggers      map[string]string `yaml:"loggers"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse log config %s: %w", path, err)
	}
	return cfg, nil
}

// Rules converts the config into zapfilter rules.
// Each logger entry applies to the named logger and its children.
func (c *Config) Rules() (string, error) {
	def := c.DefaultLevel
	if def == "" {
		def = "info"
	}
	if _, err := ParseLevel(def); err != nil {
		return "", fmt.Errorf("default level: %w", err)
	}
	rules := []string{fmt.Sprintf("%s+:*", def)}
	names := make([]string, 0, len(c.Loggers))
	for name := range c.Loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		level := strings.ToLower(c.Loggers[name])
		if _, err := ParseLevel(level); err != nil {
			return "", fmt.Errorf("level for %s: %w", name, err)
		}
		rules = append(rules,
			fmt.Sprintf("%s+:%s", level, name),
			fmt.Sprintf("%s+:%s.*", level, name))
	}
	return strings.Join(rules, " "), nil
}

// WithFilterRules returns an option wrapping the core with a zapfilter core.
// The logger level has to be low enough to let the filtered entries pass.
func WithFilterRules(rules string) (Option, error) {
	filter, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	return zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapfilter.NewFilteringCore(c, filter)
	}), nil
}
