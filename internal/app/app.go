package app

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
)

var Version = "0.3.0"

var ConfigPath string
var Info = map[string]any{
	"version": Version,
}

// Init - parse flags, load configs and init logger.
// Input flags are converted to `decode` config items, so they override config files.
func Init() {
	var confs flagConfig
	var input, format string
	var version bool

	flag.Var(&confs, "config", "go2avc config (path to file, raw text or key.sub=value), support multiple")
	flag.StringVar(&input, "i", "", "Input file with H.264 stream, - for stdin")
	flag.StringVar(&format, "format", "", "Input format: annexb or rtp")
	flag.BoolVar(&version, "version", false, "Print the version of the application and exit")
	flag.Parse()

	if version {
		fmt.Printf("go2avc version %s%s %s/%s\n", Version, revision(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if input != "" {
		confs = append(confs, "decode.input="+input)
	}
	if format != "" {
		confs = append(confs, "decode.format="+format)
	}

	initConfig(confs)
	initLogger()

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	Logger.Info().Str("version", Version).Str("platform", platform).Msg("go2avc")
	Logger.Debug().Str("version", runtime.Version()).Msg("build")

	if ConfigPath != "" {
		Logger.Info().Str("path", ConfigPath).Msg("config")
	}
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			if len(setting.Value) > 7 {
				return " (" + setting.Value[:7] + ")"
			}
			return " (" + setting.Value + ")"
		}
	}
	return ""
}
