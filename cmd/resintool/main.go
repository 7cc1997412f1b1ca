// resintool slices STL and glTF models into resin printer files and
// inspects existing ones.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/resin-slicer/internal/config"
	"github.com/Faultbox/resin-slicer/internal/logger"
	"github.com/Faultbox/resin-slicer/internal/modelio"
	"github.com/Faultbox/resin-slicer/internal/pipeline"
	"github.com/Faultbox/resin-slicer/pkg/formats"
)

var errVerify = errors.New("verification failed")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "slice":
		err = cmdSlice(args, os.Stdout)
	case "info":
		err = cmdInfo(args, os.Stdout)
	case "verify":
		err = cmdVerify(args, os.Stdout)
	case "config":
		err = cmdConfig(args, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`resintool - resin printer slicer

Usage:
  resintool <command> [options]

Commands:
  slice [options] <model> [output]   Slice an STL/GLB/glTF model
  info <file>                        Show print file header and statistics
  verify <file>                      Decode every layer and report problems
  config [-o path]                   Write the effective config as YAML

Examples:
  resintool slice -format ctb part.stl
  resintool slice -layer-height 0.03 -config printer.yaml part.glb part.goo
  resintool info part.goo
  resintool verify part.ctb`)
}

// initLogging configures the global logger from the loaded config.
func initLogging(cfg *config.Config) error {
	fileCfg := logger.FileConfig{}
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
		fileCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
		fileCfg.MaxBackups = cfg.Logging.MaxBackups
	}
	return logger.InitWithFileConfig(cfg.Logging.Level, fileCfg, true)
}

func cmdSlice(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("slice", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	output := fs.String("o", "", "Output file (default: model name with the format's extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: resintool slice [options] <model> [output]")
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	input := fs.Arg(0)
	target := *output
	if fs.NArg() > 1 {
		target = fs.Arg(1)
	}
	if target == "" {
		target = strings.TrimSuffix(input, filepath.Ext(input)) + opts.Format.Extension()
	} else if f, err := formats.FormatFromPath(target); err == nil && f != opts.Format {
		// An explicit extension picks the format.
		opts.Format = f
	}

	m, err := modelio.Load(input)
	if err != nil {
		return err
	}
	logger.Info("model loaded",
		zap.String("path", input),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("faces", m.FaceCount()))

	ix := pipeline.NewIndexer(logger.Named("indexer"))
	ix.Rebuild(m)
	snap := ix.Wait()
	if !snap.Manifold() {
		logger.Warn("mesh is not manifold",
			zap.Int("boundary_edges", snap.HalfEdges.BoundaryEdges()),
			zap.Int("duplicate_edges", snap.HalfEdges.DuplicateEdges()))
	}

	job, err := pipeline.NewJob(snap, opts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go reportProgress(job, done)
	res, err := job.Run()
	close(done)
	if err != nil {
		return err
	}

	if err := os.WriteFile(target, res.Data, 0644); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote:     %s (%d bytes, %s)\n", target, len(res.Data), res.Format)
	fmt.Fprintf(out, "Layers:    %d\n", res.Stats.LayerCount)
	fmt.Fprintf(out, "Resin:     %.2f ml, %.2f g, %.2f %s\n",
		res.Stats.VolumeML, res.Stats.WeightG, res.Stats.Price, cfg.Material.PriceUnit)
	fmt.Fprintf(out, "Model:     %.2f ml\n", res.MeshVolumeML)
	fmt.Fprintf(out, "Time:      %s\n", res.Stats.PrintTime)
	fmt.Fprintf(out, "Area:      max %.1f mm² (layer %d), mean %.1f mm²\n", res.Area.Max, res.Area.MaxLayer, res.Area.Mean)
	if len(res.Islands) > 0 {
		fmt.Fprintf(out, "Islands:   %d layers\n", len(res.Islands))
	}
	if res.Overhangs > 0 {
		fmt.Fprintf(out, "Overhangs: %d vertices\n", res.Overhangs)
	}
	return nil
}

// reportProgress logs the job's progress until done is closed.
func reportProgress(job *pipeline.Job, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p := job.Progress()
			logger.Info("progress",
				zap.String("job", job.ID()),
				zap.Int("sliced", p.Sliced),
				zap.Int("encoded", p.Encoded),
				zap.Int("total", p.Total),
				zap.Float64("fraction", p.Fraction()))
		}
	}
}

func readDocument(path string) (*formats.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return formats.Decode(data)
}

func cmdInfo(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: resintool info <file>")
	}

	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}
	s := doc.Settings

	fmt.Fprintf(out, "File:       %s\n", args[0])
	fmt.Fprintf(out, "Format:     %s\n", doc.Format)
	if s.MachineName != "" {
		fmt.Fprintf(out, "Machine:    %s\n", s.MachineName)
	}
	fmt.Fprintf(out, "Resolution: %dx%d\n", s.ResolutionX, s.ResolutionY)
	fmt.Fprintf(out, "Platform:   %.2fx%.2fx%.2f mm\n", s.SizeX, s.SizeY, s.SizeZ)
	fmt.Fprintf(out, "Layers:     %d x %.3f mm\n", len(doc.Layers), s.LayerHeight)
	fmt.Fprintf(out, "Exposure:   %.2f s, bottom %.2f s x %d\n", s.ExposureTime, s.BottomExposureTime, s.BottomLayers)
	if !s.Created.IsZero() {
		fmt.Fprintf(out, "Created:    %s\n", s.Created.Format(time.RFC3339))
	}
	if doc.Stats.VolumeML > 0 {
		fmt.Fprintf(out, "Resin:      %.2f ml, %.2f g\n", doc.Stats.VolumeML, doc.Stats.WeightG)
	}
	if doc.Stats.PrintTime > 0 {
		fmt.Fprintf(out, "Time:       %s\n", doc.Stats.PrintTime)
	}
	for _, p := range []*formats.Preview{doc.Previews.Small, doc.Previews.Large} {
		if p != nil {
			fmt.Fprintf(out, "Preview:    %dx%d\n", p.Width, p.Height)
		}
	}
	for _, w := range doc.Warnings {
		fmt.Fprintf(out, "Warning:    %s\n", w)
	}
	return nil
}

func cmdVerify(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: resintool verify <file>")
	}

	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}

	problems := len(doc.Warnings)
	for _, w := range doc.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for i, l := range doc.Layers {
		if err := l.Validate(); err != nil {
			fmt.Fprintf(out, "layer %d: %v\n", i, err)
			problems++
		}
	}

	if problems > 0 {
		return fmt.Errorf("%w: %d problems in %s", errVerify, problems, args[0])
	}
	fmt.Fprintf(out, "OK: %s (%s, %d layers)\n", args[0], doc.Format, len(doc.Layers))
	return nil
}

func cmdConfig(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	path := fs.String("o", "", "Output path (default: user config directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	target := *path
	if target == "" {
		target = filepath.Join(config.ConfigDir(), "config.yaml")
	}
	if err := cfg.SaveTo(target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote: %s\n", target)
	return nil
}
