package crawlsched

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type configFile struct {
	Crawls []configEntry `yaml:"crawls"`
}

type configEntry struct {
	Name        string            `yaml:"name"`
	Platform    string            `yaml:"platform"`
	Keywords    []string          `yaml:"keywords"`
	Sources     []string          `yaml:"sources"`
	Frequency   string            `yaml:"frequency"`
	Limit       int               `yaml:"limit"`
	Enabled     *bool             `yaml:"enabled"`
	ExtraParams map[string]string `yaml:"extra_params"`
}

// LoadConfigFile parses a YAML crawl config file. Entries default to
// enabled, every_6_hours, limit 100.
func LoadConfigFile(path string) ([]CrawlConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=crawlsched.LoadConfigFile: read %s: %w", path, err)
	}

	var file configFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("op=crawlsched.LoadConfigFile: parse %s: %w", path, err)
	}

	configs := make([]CrawlConfig, 0, len(file.Crawls))
	for _, e := range file.Crawls {
		cfg := CrawlConfig{
			Name:        e.Name,
			Platform:    e.Platform,
			Keywords:    e.Keywords,
			Sources:     e.Sources,
			Frequency:   Frequency(e.Frequency),
			Limit:       e.Limit,
			Enabled:     true,
			ExtraParams: e.ExtraParams,
		}
		if e.Enabled != nil {
			cfg.Enabled = *e.Enabled
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Bootstrap loads a config file and schedules every entry. Invalid
// entries are logged and skipped so one bad block cannot take down the
// rest. Returns the job IDs that were scheduled.
func Bootstrap(s *Scheduler, path string) []string {
	configs, err := LoadConfigFile(path)
	if err != nil {
		slog.Error("crawl config bootstrap failed", slog.String("error", err.Error()))
		return nil
	}

	var jobIDs []string
	for _, cfg := range configs {
		jobID, err := s.AddConfig(cfg)
		if err != nil {
			slog.Error("skipping crawl config",
				slog.String("name", cfg.Name),
				slog.String("error", err.Error()))
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}
	return jobIDs
}
