package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexxIT/go2avc/pkg/shell"
	"github.com/AlexxIT/go2avc/pkg/yaml"
)

// configs - all config sources in flag order, later values override earlier
var configs [][]byte

// LoadConfig - unmarshal every config source into v
func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Msg("[app] read config")
		}
	}
}

type flagConfig []string

func (c *flagConfig) String() string {
	return strings.Join(*c, " ")
}

func (c *flagConfig) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func initConfig(confs flagConfig) {
	if confs == nil {
		confs = flagConfig{"go2avc.yaml"}
	}

	configs = configs[:0]
	for _, conf := range confs {
		if data := readConfig(conf); data != nil {
			configs = append(configs, data)
		}
	}

	// `env` section of any config is visible to all of them
	for _, data := range configs {
		loadEnv(data)
	}
	for i, data := range configs {
		configs[i] = []byte(shell.ReplaceVars(string(data), lookupEnv))
	}

	if ConfigPath != "" {
		if abs, err := filepath.Abs(ConfigPath); err == nil {
			ConfigPath = abs
		}
		Info["config_path"] = ConfigPath
	}
}

// readConfig - raw YAML/JSON, key.sub=value item or path to file,
// first file path becomes ConfigPath even if file doesn't exist
func readConfig(conf string) []byte {
	switch {
	case conf == "":
		return nil
	case conf[0] == '{':
		return []byte(conf)
	}

	if data := parseConfString(conf); data != nil {
		return data
	}

	if ConfigPath == "" {
		ConfigPath = conf
	}

	data, _ := os.ReadFile(conf)
	return data
}

// parseConfString - `decode.input=a.264` => `{decode: {input: a.264}}`
func parseConfString(s string) []byte {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return nil
	}

	items := strings.Split(key, ".")
	if len(items) < 2 {
		return nil
	}

	return []byte(nest(items, value))
}

func nest(items []string, value string) string {
	if len(items) == 0 {
		return value
	}
	return "{" + items[0] + ": " + nest(items[1:], value) + "}"
}
