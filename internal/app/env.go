package app

import (
	"os"
	"sync"

	"github.com/AlexxIT/go2avc/pkg/yaml"
)

var envs = map[string]string{}
var envsMu sync.Mutex

func loadEnv(data []byte) {
	var cfg struct {
		Env map[string]string `yaml:"env"`
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return
	}

	envsMu.Lock()
	for name, value := range cfg.Env {
		envs[name] = value
	}
	envsMu.Unlock()
}

// lookupEnv - process environment has priority over `env` config section
func lookupEnv(name string) (value string, ok bool) {
	if value, ok = os.LookupEnv(name); ok {
		return
	}

	envsMu.Lock()
	value, ok = envs[name]
	envsMu.Unlock()
	return
}
