package decode

import (
	"context"
	"io"
	"os"

	"github.com/AlexxIT/go2avc/internal/app"
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/annexb"
	"github.com/AlexxIT/go2avc/pkg/h264/decoder"
	"github.com/AlexxIT/go2avc/pkg/h264/dpb"
	"github.com/AlexxIT/go2avc/pkg/yaml"
	"github.com/pion/rtcp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Config struct {
	Input        string `yaml:"input"`
	Format       string `yaml:"format"`
	Trace        bool   `yaml:"trace"`
	MaxPictures  int    `yaml:"max_pictures"`
	DpbExtra     int    `yaml:"dpb_extra"`
	Conceal      bool   `yaml:"conceal"`
	BaseViewOnly bool   `yaml:"base_view_only"`
	AllocSamples bool   `yaml:"alloc_samples"`

	// out-of-band parameter sets: path to SDP file or fmtp line with sprop-parameter-sets
	SDP   string `yaml:"sdp"`
	Sprop string `yaml:"sprop"`
}

// Stats - result of decoding
type Stats struct {
	Pictures int
	Output   int
}

// LoadConfig - `decode` section with defaults
func LoadConfig() Config {
	var cfg struct {
		Mod Config `yaml:"decode"`
	}

	// default config
	cfg.Mod.Input = "-"
	cfg.Mod.Format = "annexb"

	app.LoadConfig(&cfg)
	app.Info["decode"] = cfg.Mod

	if b, err := yaml.Encode(cfg.Mod, 2); err == nil {
		log := app.GetLogger("decode")
		log.Debug().Msgf("[decode] config\n%s", b)
	}

	return cfg.Mod
}

// Run - decode input until end of stream, max_pictures or context cancel
func Run(ctx context.Context, cfg Config) (Stats, error) {
	log := app.GetLogger("decode")

	var rd io.Reader
	if cfg.Input == "-" || cfg.Input == "" {
		rd = os.Stdin
	} else {
		f, err := os.Open(cfg.Input)
		if err != nil {
			return Stats{}, err
		}
		defer f.Close()
		rd = f
	}

	src, err := NewSource(cfg.Format, rd, log)
	if err != nil {
		return Stats{}, err
	}

	units, err := ParameterSets(cfg)
	if err != nil {
		return Stats{}, err
	}
	if len(units) > 0 {
		log.Debug().Msgf("[decode] out-of-band parameter sets=%d", len(units))
		src = decoder.WithUnits(units, src)
	}

	log.Info().Str("input", cfg.Input).Str("format", cfg.Format).Msg("[decode] start")

	stats, err := decode(ctx, cfg, src, log, app.GetLogger("decoder"))

	log.Info().Int("pictures", stats.Pictures).Int("output", stats.Output).Msg("[decode] finish")

	return stats, err
}

// NewSource - NAL unit iterator for input format
func NewSource(format string, rd io.Reader, log zerolog.Logger) (decoder.Source, error) {
	switch format {
	case "", "annexb":
		return annexb.NewReader(rd), nil
	case "rtp":
		r := h264.NewRTPReader(rd)
		r.OnRTCP = func(channel byte, packets []rtcp.Packet) {
			for _, packet := range packets {
				if sr, ok := packet.(*rtcp.SenderReport); ok {
					log.Debug().Msgf("[decode] rtcp channel=%d ssrc=%d rtp_time=%d", channel, sr.SSRC, sr.RTPTime)
				}
			}
		}
		return r, nil
	}
	return nil, errors.Errorf("decode: unknown format=%s", format)
}

// ParameterSets - units from `sdp` file and `sprop` line
func ParameterSets(cfg Config) (units [][]byte, err error) {
	if cfg.SDP != "" {
		b, err := os.ReadFile(cfg.SDP)
		if err != nil {
			return nil, err
		}
		if units, err = h264.ParameterSetsFromSDP(b); err != nil {
			return nil, err
		}
	}

	if cfg.Sprop != "" {
		sprop, err := h264.ParameterSets(cfg.Sprop)
		if err != nil {
			return nil, err
		}
		units = append(units, sprop...)
	}

	return
}

func decode(ctx context.Context, cfg Config, src decoder.Source, log, decLog zerolog.Logger) (stats Stats, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dcfg := decoder.Config{
		Output: dpb.OutputFunc(func(fs *dpb.FrameStore) {
			stats.Output++
			log.Trace().Msgf("[decode] output poc=%d view=%d frame_num=%d", fs.POC, fs.ViewID, fs.FrameNum)
		}),
		Logger: decLog,
		OnPicture: func(info decoder.PictureInfo) {
			// picture in progress is finished by cancel
			if cfg.MaxPictures > 0 && stats.Pictures >= cfg.MaxPictures {
				return
			}

			stats.Pictures++
			log.Info().Msgf("[decode] %5d %s", stats.Pictures, info)

			if cfg.MaxPictures > 0 && stats.Pictures >= cfg.MaxPictures {
				cancel()
			}
		},
		DpbExtra:     cfg.DpbExtra,
		Conceal:      cfg.Conceal,
		AllocSamples: cfg.AllocSamples,
		BaseViewOnly: cfg.BaseViewOnly,
	}

	if cfg.Trace {
		dcfg.Trace = func(name string, pos int, value int64) {
			log.Info().Msgf("[trace] @%-6d %-50s %d", pos, name, value)
		}
	}

	err = decoder.New(dcfg).Run(ctx, src)

	// stop by max_pictures isn't an error
	if errors.Is(err, context.Canceled) && cfg.MaxPictures > 0 && stats.Pictures >= cfg.MaxPictures {
		err = nil
	}

	return
}
