package shell

import (
	"os"
	"regexp"
	"strings"
)

var reVar = regexp.MustCompile(`\${([^}{]+)}`)

// ReplaceEnvVars - `${NAME}` and `${NAME:default}` from process environment
func ReplaceEnvVars(text string) string {
	return ReplaceVars(text, os.LookupEnv)
}

// ReplaceVars - same as ReplaceEnvVars with custom lookup,
// unknown variables without default stay as is
func ReplaceVars(text string, lookup func(key string) (string, bool)) string {
	return reVar.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-1]

		var def string
		var dok bool

		i := strings.IndexByte(key, ':')
		if i > 0 {
			key, def = key[:i], key[i+1:]
			dok = true
		}

		if value, vok := lookup(key); vok {
			return value
		}

		if dok {
			return def
		}

		return match
	})
}
