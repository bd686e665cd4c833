// Package assetcheck decodes registered assets to catch files that would
// fail when the game loads them.
package assetcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
	"github.com/vk/minemods/internal/assets"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent decoding.
const DefaultWorkers = 4

// Result is the outcome of inspecting one asset.
type Result struct {
	Name      string      `json:"name"`
	Namespace string      `json:"namespace"`
	Type      assets.Type `json:"type"`
	Detail    string      `json:"detail,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// OK reports whether the asset decoded.
func (r Result) OK() bool { return r.Error == "" }

// Checker inspects assets concurrently.
type Checker struct {
	logger  *slog.Logger
	workers int
}

// New creates a Checker running at most workers decoders at once.
func New(logger *slog.Logger, workers int) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Checker{logger: logger, workers: workers}
}

// Check inspects every asset and returns one result per asset in input
// order. Only cancellation of ctx makes it return an error.
func (c *Checker) Check(ctx context.Context, infos []assets.Info) ([]Result, error) {
	results := make([]Result, len(infos))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, info := range infos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := Result{Name: info.Name, Namespace: info.ModNamespace, Type: info.Type}
			detail, err := Inspect(info)
			if err != nil {
				res.Error = err.Error()
				c.logger.Warn("Asset failed inspection.", "asset", info.Name, "namespace", info.ModNamespace, "error", err)
			}
			res.Detail = detail
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Inspect decodes one asset and describes it.
func Inspect(info assets.Info) (string, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch info.Type {
	case assets.Image, assets.Tileset:
		return inspectImage(f)
	case assets.Sound:
		return inspectSound(f, path.Ext(strings.ToLower(info.Name)))
	case assets.Font:
		return inspectFont(f)
	case assets.Config:
		return inspectConfig(f)
	}
	return "", fmt.Errorf("unknown asset type %q", info.Type)
}

func inspectImage(r io.Reader) (string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return fmt.Sprintf("%s %dx%d", format, cfg.Width, cfg.Height), nil
}

func inspectSound(f *os.File, ext string) (string, error) {
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch ext {
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".ogg":
		s, format, err = vorbis.Decode(f)
	default:
		return "", fmt.Errorf("unsupported sound format %q", ext)
	}
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", strings.TrimPrefix(ext, "."), err)
	}
	defer s.Close()
	d := format.SampleRate.D(s.Len())
	return fmt.Sprintf("%d Hz, %d ch, %s", format.SampleRate, format.NumChannels, d), nil
}

func inspectFont(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return "", fmt.Errorf("parse font: %w", err)
	}
	name, err := font.Name(nil, sfnt.NameIDFull)
	if err != nil {
		name = "unnamed"
	}
	return fmt.Sprintf("%s, %d glyphs", name, font.NumGlyphs()), nil
}

func inspectConfig(r io.Reader) (string, error) {
	var doc map[string]any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode config: %w", err)
	}
	return fmt.Sprintf("%d keys", len(doc)), nil
}
