package formats

import "time"

// PrintSettings are the machine and exposure parameters written into a
// container header. Distances are in mm, speeds in mm/min and times in
// seconds.
type PrintSettings struct {
	ResolutionX uint32
	ResolutionY uint32
	SizeX       float64
	SizeY       float64
	SizeZ       float64
	MirrorX     bool
	MirrorY     bool

	LayerHeight        float64
	ExposureTime       float64
	BottomExposureTime float64
	BottomLayers       uint32
	TransitionLayers   uint32

	LiftDistance          float64
	LiftSpeed             float64
	BottomLiftDistance    float64
	BottomLiftSpeed       float64
	RetractDistance       float64
	RetractSpeed          float64
	BottomRetractDistance float64
	BottomRetractSpeed    float64
	LightOffDelay         float64
	BottomLightOffDelay   float64

	LightPWM       uint8
	BottomLightPWM uint8
	AntiAliasLevel uint8

	MachineName     string
	ProfileName     string
	SoftwareName    string
	SoftwareVersion string

	// ResinDensity is in g/ml, ResinPrice per litre in PriceUnit.
	ResinDensity float64
	ResinPrice   float64
	PriceUnit    string

	Created time.Time
}

// LayerZ returns the platform height after layer i is cured.
func (s PrintSettings) LayerZ(i int) float64 {
	return float64(i+1) * s.LayerHeight
}

// LayerExposure returns the exposure of layer i. Bottom layers use the
// bottom exposure and transition layers step linearly towards the normal
// exposure.
func (s PrintSettings) LayerExposure(i int) float64 {
	bottom := int(s.BottomLayers)
	if i < bottom {
		return s.BottomExposureTime
	}
	steps := int(s.TransitionLayers)
	if t := i - bottom; t < steps {
		frac := float64(t+1) / float64(steps+1)
		return s.BottomExposureTime + (s.ExposureTime-s.BottomExposureTime)*frac
	}
	return s.ExposureTime
}

// IsBottom reports whether layer i uses the bottom lift and light settings.
func (s PrintSettings) IsBottom(i int) bool {
	return i < int(s.BottomLayers)
}

// Stats are the material and time estimates stored in a container.
type Stats struct {
	LayerCount int
	// VolumeML is the resin volume in millilitres.
	VolumeML float64
	// WeightG is the resin weight in grams.
	WeightG float64
	// Price is the resin cost in the settings' price unit.
	Price     float64
	PrintTime time.Duration
}
