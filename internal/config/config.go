// Package config handles slicer configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/resin-slicer/pkg/formats"
	"github.com/Faultbox/resin-slicer/pkg/postprocess"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all slicer settings.
type Config struct {
	Printer     PrinterConfig     `yaml:"printer"`
	Exposure    ExposureConfig    `yaml:"exposure"`
	Motion      MotionConfig      `yaml:"motion"`
	Material    MaterialConfig    `yaml:"material"`
	Slicing     SlicingConfig     `yaml:"slicing"`
	PostProcess PostProcessConfig `yaml:"postprocess"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// PrinterConfig describes the machine: LCD resolution and build volume in mm.
type PrinterConfig struct {
	Name        string  `yaml:"name"`
	ResolutionX uint32  `yaml:"resolution_x"`
	ResolutionY uint32  `yaml:"resolution_y"`
	SizeX       float64 `yaml:"size_x"`
	SizeY       float64 `yaml:"size_y"`
	SizeZ       float64 `yaml:"size_z"`
	MirrorX     bool    `yaml:"mirror_x"`
	MirrorY     bool    `yaml:"mirror_y"`
}

// ExposureConfig holds layer thickness and cure times in seconds.
type ExposureConfig struct {
	LayerHeight         float64 `yaml:"layer_height"`
	Time                float64 `yaml:"time"`
	BottomTime          float64 `yaml:"bottom_time"`
	BottomLayers        uint32  `yaml:"bottom_layers"`
	TransitionLayers    uint32  `yaml:"transition_layers"`
	LightOffDelay       float64 `yaml:"light_off_delay"`
	BottomLightOffDelay float64 `yaml:"bottom_light_off_delay"`
	LightPWM            uint8   `yaml:"light_pwm"`
	BottomLightPWM      uint8   `yaml:"bottom_light_pwm"`
}

// MotionConfig holds lift and retract moves (mm, mm/min).
type MotionConfig struct {
	LiftDistance          float64 `yaml:"lift_distance"`
	LiftSpeed             float64 `yaml:"lift_speed"`
	BottomLiftDistance    float64 `yaml:"bottom_lift_distance"`
	BottomLiftSpeed       float64 `yaml:"bottom_lift_speed"`
	RetractDistance       float64 `yaml:"retract_distance"`
	RetractSpeed          float64 `yaml:"retract_speed"`
	BottomRetractDistance float64 `yaml:"bottom_retract_distance"`
	BottomRetractSpeed    float64 `yaml:"bottom_retract_speed"`
}

// MaterialConfig holds resin properties used for the cost estimate.
type MaterialConfig struct {
	Density   float64 `yaml:"density"`    // g/ml
	Price     float64 `yaml:"price"`      // per litre
	PriceUnit string  `yaml:"price_unit"` // e.g. "EUR"
}

// SlicingConfig holds concurrency limits. Zero means one worker per CPU.
type SlicingConfig struct {
	Workers       int `yaml:"workers"`
	EncodeWorkers int `yaml:"encode_workers"`
}

// PostProcessConfig holds the optional layer passes.
type PostProcessConfig struct {
	ElephantFootLayers    int   `yaml:"elephant_foot_layers"`
	ElephantFootInset     int   `yaml:"elephant_foot_inset"`
	ElephantFootIntensity uint8 `yaml:"elephant_foot_intensity"`
	AntiAliasRadius       int   `yaml:"anti_alias_radius"`
	DetectIslands         bool  `yaml:"detect_islands"`
}

// OutputConfig selects the container format.
type OutputConfig struct {
	Format   string `yaml:"format"`
	Previews bool   `yaml:"previews"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Printer: PrinterConfig{
			Name:        "Generic MSLA",
			ResolutionX: 2560,
			ResolutionY: 1620,
			SizeX:       130.56,
			SizeY:       82.62,
			SizeZ:       160,
		},
		Exposure: ExposureConfig{
			LayerHeight:         0.05,
			Time:                2.5,
			BottomTime:          30,
			BottomLayers:        4,
			TransitionLayers:    0,
			LightOffDelay:       0.5,
			BottomLightOffDelay: 1,
			LightPWM:            255,
			BottomLightPWM:      255,
		},
		Motion: MotionConfig{
			LiftDistance:          6,
			LiftSpeed:             65,
			BottomLiftDistance:    7,
			BottomLiftSpeed:       50,
			RetractDistance:       6,
			RetractSpeed:          150,
			BottomRetractDistance: 7,
			BottomRetractSpeed:    150,
		},
		Material: MaterialConfig{
			Density:   1.1,
			Price:     30,
			PriceUnit: "EUR",
		},
		PostProcess: PostProcessConfig{
			ElephantFootIntensity: 200,
			DetectIslands:         true,
		},
		Output: OutputConfig{
			Format:   "goo",
			Previews: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Validate reports the first setting that cannot be used for slicing.
func (c *Config) Validate() error {
	switch {
	case c.Printer.ResolutionX == 0 || c.Printer.ResolutionY == 0:
		return fmt.Errorf("%w: printer resolution %dx%d", ErrInvalid, c.Printer.ResolutionX, c.Printer.ResolutionY)
	case c.Printer.SizeX <= 0 || c.Printer.SizeY <= 0 || c.Printer.SizeZ <= 0:
		return fmt.Errorf("%w: printer size %gx%gx%g", ErrInvalid, c.Printer.SizeX, c.Printer.SizeY, c.Printer.SizeZ)
	case c.Exposure.LayerHeight <= 0:
		return fmt.Errorf("%w: layer height %g", ErrInvalid, c.Exposure.LayerHeight)
	case c.Exposure.Time <= 0 || c.Exposure.BottomTime <= 0:
		return fmt.Errorf("%w: exposure %g, bottom exposure %g", ErrInvalid, c.Exposure.Time, c.Exposure.BottomTime)
	case c.Slicing.Workers < 0 || c.Slicing.EncodeWorkers < 0:
		return fmt.Errorf("%w: negative worker count", ErrInvalid)
	case c.PostProcess.ElephantFootLayers < 0 || c.PostProcess.ElephantFootInset < 0 || c.PostProcess.AntiAliasRadius < 0:
		return fmt.Errorf("%w: negative post-processing setting", ErrInvalid)
	}
	if _, err := formats.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("%w: output format: %v", ErrInvalid, err)
	}
	return nil
}

// PrintSettings converts the printer, exposure, motion and material
// sections into container header settings.
func (c *Config) PrintSettings() formats.PrintSettings {
	aa := uint8(1)
	if c.PostProcess.AntiAliasRadius > 0 {
		aa = uint8(min(2*c.PostProcess.AntiAliasRadius+1, 16))
	}
	return formats.PrintSettings{
		ResolutionX:           c.Printer.ResolutionX,
		ResolutionY:           c.Printer.ResolutionY,
		SizeX:                 c.Printer.SizeX,
		SizeY:                 c.Printer.SizeY,
		SizeZ:                 c.Printer.SizeZ,
		MirrorX:               c.Printer.MirrorX,
		MirrorY:               c.Printer.MirrorY,
		LayerHeight:           c.Exposure.LayerHeight,
		ExposureTime:          c.Exposure.Time,
		BottomExposureTime:    c.Exposure.BottomTime,
		BottomLayers:          c.Exposure.BottomLayers,
		TransitionLayers:      c.Exposure.TransitionLayers,
		LiftDistance:          c.Motion.LiftDistance,
		LiftSpeed:             c.Motion.LiftSpeed,
		BottomLiftDistance:    c.Motion.BottomLiftDistance,
		BottomLiftSpeed:       c.Motion.BottomLiftSpeed,
		RetractDistance:       c.Motion.RetractDistance,
		RetractSpeed:          c.Motion.RetractSpeed,
		BottomRetractDistance: c.Motion.BottomRetractDistance,
		BottomRetractSpeed:    c.Motion.BottomRetractSpeed,
		LightOffDelay:         c.Exposure.LightOffDelay,
		BottomLightOffDelay:   c.Exposure.BottomLightOffDelay,
		LightPWM:              c.Exposure.LightPWM,
		BottomLightPWM:        c.Exposure.BottomLightPWM,
		AntiAliasLevel:        aa,
		MachineName:           c.Printer.Name,
		ResinDensity:          c.Material.Density,
		ResinPrice:            c.Material.Price,
		PriceUnit:             c.Material.PriceUnit,
	}
}

// PostProcessOptions returns the layer pass settings.
func (c *Config) PostProcessOptions() postprocess.Options {
	return postprocess.Options{
		ElephantFootLayers:    c.PostProcess.ElephantFootLayers,
		ElephantFootInset:     c.PostProcess.ElephantFootInset,
		ElephantFootIntensity: c.PostProcess.ElephantFootIntensity,
		AntiAliasRadius:       c.PostProcess.AntiAliasRadius,
		DetectIslands:         c.PostProcess.DetectIslands,
	}
}
