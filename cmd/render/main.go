// Command render fetches the temperature dataset once and writes the heat map
// to a file. A fetch or validation failure is fatal and writes nothing.
//
// Usage:
//
//	go run ./cmd/render \
//	  -source https://raw.githubusercontent.com/freeCodeCamp/ProjectReferenceData/master/global-temperature.json \
//	  -format svg \
//	  -out heatmap.svg
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-heatmap-service/internal/client"
	"github.com/kjstillabower/temperature-heatmap-service/internal/config"
	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
	"github.com/kjstillabower/temperature-heatmap-service/internal/render"
)

type options struct {
	source     string
	format     string
	out        string
	configPath string
	timeout    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.source, "source", "", "dataset URL, file:// URL or path (default: config dataset.url)")
	flag.StringVar(&opts.format, "format", "", "html, svg or png (default: from -out extension, else svg)")
	flag.StringVar(&opts.out, "out", "", `output file, "-" for stdout (default: heatmap.<format>)`)
	flag.StringVar(&opts.configPath, "config", "", "YAML config file for chart settings")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "dataset fetch timeout")
	flag.Parse()

	logger, err := observability.NewLogger("heatmap-render")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		logger.Fatal("render failed", zap.Error(err))
	}
}

// singleFetch loads the dataset with one attempt and no cache.
type singleFetch struct {
	client client.DatasetClient
}

func (f singleFetch) GetDataset(ctx context.Context, source string) (models.Dataset, error) {
	return f.client.FetchDataset(ctx, source)
}

func run(ctx context.Context, opts options, stdout io.Writer, logger *zap.Logger) error {
	chartCfg := heatmap.DefaultConfig()
	title := ""
	source := config.DefaultDatasetURL
	if opts.configPath != "" {
		cfg, err := config.LoadFile(opts.configPath)
		if err != nil {
			return err
		}
		chartCfg = cfg.Heatmap()
		title = cfg.Chart.Title
		source = cfg.DatasetURL
	}
	if s := strings.TrimSpace(opts.source); s != "" {
		source = s
	}

	format, out, err := resolveOutput(opts.format, opts.out)
	if err != nil {
		return err
	}

	renderer, err := heatmap.New(chartCfg)
	if err != nil {
		return err
	}
	datasetClient, err := client.NewHTTPDatasetClient(opts.timeout)
	if err != nil {
		return err
	}

	start := time.Now()
	chart, err := renderer.Load(ctx, singleFetch{client: datasetClient}, source)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if format == render.FormatHTML {
		err = render.WriteHTML(&buf, chart, render.HTMLOptions{Title: title})
	} else {
		err = render.Write(&buf, chart, format)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}

	if out == "-" {
		if _, err := stdout.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
	} else if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	logger.Info("heat map written",
		zap.String("source", source),
		zap.String("format", string(format)),
		zap.String("out", out),
		zap.Int("cells", len(chart.Cells)),
		zap.Int("bytes", buf.Len()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// resolveOutput fills whichever of format and out is missing from the other.
func resolveOutput(format, out string) (render.Format, string, error) {
	if format == "" {
		format = string(render.FormatSVG)
		if ext := strings.TrimPrefix(filepath.Ext(out), "."); ext != "" && out != "-" {
			format = ext
		}
	}
	f, err := render.ParseFormat(format)
	if err != nil {
		return "", "", err
	}
	if out == "" {
		out = "heatmap" + f.Extension()
	}
	return f, out, nil
}
