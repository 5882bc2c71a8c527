package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/ini.v1"

	"stealthfetch/internal/shared/types"
	"stealthfetch/proxypool"
)

// LoadIni loads the behavior configuration file into cfg.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnv(&cfg.StorageConf.DSN, "STEALTHFETCH_DSN")
	return nil
}

// LoadProviderRecords loads the provider proxy data file. A missing file
// yields an empty list rather than an error so deployments without a
// provider feed need no placeholder file.
func LoadProviderRecords(fileName string) ([]proxypool.ProviderRecord, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []proxypool.ProviderRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read provider file: %w", err)
	}

	var records []proxypool.ProviderRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", fileName, err)
	}
	return records, nil
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
