package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads configuration from file into config, which must be a pointer to
// a struct. Values already set on the struct act as defaults; environment
// variables (with "." replaced by "_") override file values.
func Load(file string, config any) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

// LoadEnv fills config from environment variables only, for deployments
// without a config file. Defaults come from the passed-in struct values.
func LoadEnv(config any) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key := range flatten("", m) {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %v", key, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

func flatten(prefix string, m map[string]any) map[string]struct{} {
	keys := make(map[string]struct{})
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk := range flatten(key, nested) {
				keys[nk] = struct{}{}
			}
			continue
		}
		keys[key] = struct{}{}
	}
	return keys
}
