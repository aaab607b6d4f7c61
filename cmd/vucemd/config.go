package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// config is the optional YAML configuration file. Values act as
// defaults: flags and VUCEMD_ environment variables win when set.
// Environment references ($VAR or ${VAR}) in the file are expanded
// before parsing.
type config struct {
	VucemURL    string `yaml:"vucem_url"`
	VucemUser   string `yaml:"vucem_user"`
	RecordURL   string `yaml:"record_url"`
	RecordToken string `yaml:"record_token"`
	APIKey      string `yaml:"api_key"`
	Storage     string `yaml:"storage"`
	StorageDSN  string `yaml:"storage_dsn"`
}

func loadConfig(path string) (*config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// applyDefaults fills flag values still at their zero default.
func (c *config) applyDefaults(vucemURL, vucemUser, recURL, recToken, apiKey, storage, dsn *string) {
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	fill(vucemURL, c.VucemURL)
	fill(vucemUser, c.VucemUser)
	fill(recURL, c.RecordURL)
	fill(recToken, c.RecordToken)
	fill(apiKey, c.APIKey)
	fill(dsn, c.StorageDSN)
	if *storage == "file" && c.Storage != "" {
		*storage = c.Storage
	}
}
