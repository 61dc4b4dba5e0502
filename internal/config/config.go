package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional file-based configuration. Every field has an
// environment-variable override; the file just keeps deployments tidy.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RPCPrimary  string `yaml:"rpc_primary"`
	RPCBackup   string `yaml:"rpc_backup"`
	LCDPrimary  string `yaml:"lcd_primary"`
	LCDBackup   string `yaml:"lcd_backup"`
	FactoryAddr string `yaml:"factory_addr"`
	RouterAddr  string `yaml:"router_addr"`
	NativeDenom string `yaml:"native_denom"`
	APIPort     int    `yaml:"api_port"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
