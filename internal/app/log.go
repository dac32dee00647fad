package app

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

// modules log levels, and options of the log section
var modules = map[string]string{
	"format": "",
	"level":  "info",
	"output": "stderr",
	"time":   "",
}

func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Err(err).Caller().Send()
	}

	return Logger
}

// initLogger support:
// - output: empty (disabled), stderr, stdout, path to file
// - format: empty (autodetect color support), color, json, text
// - time:   empty (disable timestamp), UNIXMS, UNIXMICRO, UNIXNANO
// - level:  disabled, trace, debug, info, warn, error...
// - any other key is the level of the module with that name
func initLogger() {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}

	cfg.Mod = modules // defaults

	LoadConfig(&cfg)

	w, openErr := logOutput(modules["output"])
	if w == nil {
		Logger = zerolog.Nop()
		return
	}

	timeFormat := modules["time"]

	if format := modules["format"]; format != "json" {
		w = consoleWriter(w, format, timeFormat != "")
	}

	lvl, _ := zerolog.ParseLevel(modules["level"])
	Logger = zerolog.New(w).Level(lvl)

	if timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
		Logger = Logger.With().Timestamp().Logger()
	}

	if openErr != nil {
		Logger.Warn().Err(openErr).Msg("[app] open log file")
	}
}

// logOutput - nil for disabled logs, stderr when the file can't be opened
func logOutput(output string) (io.Writer, error) {
	switch output {
	case "":
		return nil, nil
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

func consoleWriter(w io.Writer, format string, timestamp bool) io.Writer {
	console := &zerolog.ConsoleWriter{Out: w}

	switch format {
	case "text":
		console.NoColor = true
	case "color":
	default:
		// colors only for terminal, log file or pipe gets plain text
		f, ok := w.(*os.File)
		console.NoColor = !ok || !isatty.IsTerminal(f.Fd())
	}

	if timestamp {
		console.TimeFormat = "15:04:05.000"
	} else {
		console.PartsOrder = []string{
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		}
	}

	return console
}
