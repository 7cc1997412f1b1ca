package config

import "flag"

// Flags are the command-line overrides shared by the slicing commands.
type Flags struct {
	Config      *string
	Debug       *bool
	Format      *string
	LayerHeight *float64
	Exposure    *float64
	Workers     *int
	NoIslands   *bool
	LogFile     *string
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Config:      fs.String("config", "", "Path to config file"),
		Debug:       fs.Bool("debug", false, "Enable debug logging"),
		Format:      fs.String("format", "", "Output format (goo, ctb, nanodlp)"),
		LayerHeight: fs.Float64("layer-height", 0, "Layer height in mm"),
		Exposure:    fs.Float64("exposure", 0, "Normal layer exposure in seconds"),
		Workers:     fs.Int("workers", -1, "Slicing workers (0 = one per CPU)"),
		NoIslands:   fs.Bool("no-islands", false, "Skip island detection"),
		LogFile:     fs.String("log-file", "", "Write logs to this file as well"),
	}
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.Config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if *f.Debug {
		cfg.Logging.Level = "debug"
	}
	if *f.Format != "" {
		cfg.Output.Format = *f.Format
	}
	if *f.LayerHeight > 0 {
		cfg.Exposure.LayerHeight = *f.LayerHeight
	}
	if *f.Exposure > 0 {
		cfg.Exposure.Time = *f.Exposure
	}
	if *f.Workers >= 0 {
		cfg.Slicing.Workers = *f.Workers
	}
	if *f.NoIslands {
		cfg.PostProcess.DetectIslands = false
	}
	if *f.LogFile != "" {
		cfg.Logging.LogFile = *f.LogFile
	}
}
