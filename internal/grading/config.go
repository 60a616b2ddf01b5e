package grading

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ironsheep/omr-grader/internal/detection"
	imgproc "github.com/ironsheep/omr-grader/internal/imaging"
)

// Preset names.
const (
	PresetStandard = "standard"
	PresetCombined = "combined"
	PresetStrict   = "strict"
)

// Threshold modes.
const (
	ThresholdAdaptive = "adaptive"
	ThresholdOtsu     = "otsu"
	ThresholdCombined = "combined"
)

// ThresholdConfig selects the binarization strategy.
type ThresholdConfig struct {
	// Mode is "adaptive", "otsu", or "combined" (adaptive OR otsu).
	Mode string `yaml:"mode" json:"mode"`

	// Method, BlockSize and Offset configure the adaptive part.
	Method    imgproc.AdaptiveMethod `yaml:"method" json:"method"`
	BlockSize int                    `yaml:"block_size" json:"block_size"`
	Offset    float64                `yaml:"offset" json:"offset"`
}

// Thresholder builds the configured strategy.
func (t ThresholdConfig) Thresholder() (imgproc.Thresholder, error) {
	mode := strings.ToLower(t.Mode)
	if mode == ThresholdOtsu {
		return imgproc.OtsuThreshold{}, nil
	}

	adaptive := imgproc.AdaptiveThreshold{Method: t.Method, BlockSize: t.BlockSize, Offset: t.Offset}
	switch t.Method {
	case imgproc.AdaptiveMean, imgproc.AdaptiveGaussian:
	case "":
		adaptive.Method = imgproc.AdaptiveGaussian
	default:
		return nil, fmt.Errorf("unknown adaptive method %q", t.Method)
	}

	switch mode {
	case ThresholdAdaptive:
		return adaptive, nil
	case ThresholdCombined, "":
		return imgproc.CombinedThreshold{Parts: []imgproc.Thresholder{adaptive, imgproc.OtsuThreshold{}}}, nil
	default:
		return nil, fmt.Errorf("unknown threshold mode %q", t.Mode)
	}
}

// Config holds every tunable of a grading run. A Config is a value: a
// Grader copies it on construction and never changes it.
type Config struct {
	// Questions is the number of questions on the sheet. 0 takes the count
	// from the answer key, or from the detected bubbles when the key has
	// none.
	Questions int `yaml:"questions" json:"questions"`

	// Options is the number of bubbles per question.
	Options int `yaml:"options" json:"options"`

	Locator   detection.LocatorConfig `yaml:"locator" json:"locator"`
	Threshold ThresholdConfig         `yaml:"threshold" json:"threshold"`

	CloseRadius float64 `yaml:"close_radius" json:"close_radius"`
	OpenRadius  float64 `yaml:"open_radius" json:"open_radius"`

	Filter     detection.ShapeFilter `yaml:"shape_filter" json:"shape_filter"`
	MinBubbles int                   `yaml:"min_bubbles" json:"min_bubbles"`

	Mark      MajorityPolicy  `yaml:"mark" json:"mark"`
	Ambiguity AmbiguityPolicy `yaml:"ambiguity" json:"ambiguity"`
}

// DefaultConfig returns the "combined" preset.
func DefaultConfig() Config {
	c, _ := Preset(PresetCombined)
	return c
}

var presets = map[string]func() Config{
	// Adaptive Gaussian threshold alone with light clean-up.
	PresetStandard: func() Config {
		c := baseConfig()
		c.Threshold.Mode = ThresholdAdaptive
		c.CloseRadius = 1
		c.OpenRadius = 1
		return c
	},
	// Adaptive OR Otsu with a wider closing for broken pencil strokes.
	PresetCombined: func() Config {
		c := baseConfig()
		c.Threshold.Mode = ThresholdCombined
		c.CloseRadius = 2
		c.OpenRadius = 1
		return c
	},
	// Tight shape bounds for clean, well-printed sheets.
	PresetStrict: func() Config {
		c := baseConfig()
		c.Threshold.Mode = ThresholdCombined
		c.CloseRadius = 1
		c.OpenRadius = 1
		c.Filter.MinAspect = 0.9
		c.Filter.MaxAspect = 1.1
		c.Filter.MinSide = 20
		return c
	},
}

func baseConfig() Config {
	return Config{
		Options: 5,
		Locator: detection.DefaultLocatorConfig(),
		Threshold: ThresholdConfig{
			Method:    imgproc.AdaptiveGaussian,
			BlockSize: 11,
			Offset:    2,
		},
		Filter:     detection.DefaultShapeFilter(),
		MinBubbles: 5,
		Mark:       DefaultMajorityPolicy(),
		Ambiguity:  HighestConfidence,
	}
}

// Preset returns the named configuration.
func Preset(name string) (Config, error) {
	mk, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return mk(), nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.Questions < 0:
		return fmt.Errorf("questions must not be negative, got %d", c.Questions)
	case c.Options < 1:
		return fmt.Errorf("options must be at least 1, got %d", c.Options)
	case c.MinBubbles < 1:
		return fmt.Errorf("min_bubbles must be at least 1, got %d", c.MinBubbles)
	case c.CloseRadius < 0 || c.OpenRadius < 0:
		return fmt.Errorf("morphology radii must not be negative")
	case c.Filter.MinAspect > c.Filter.MaxAspect:
		return fmt.Errorf("shape_filter: min_aspect %g exceeds max_aspect %g", c.Filter.MinAspect, c.Filter.MaxAspect)
	case c.Filter.MinAreaFraction > c.Filter.MaxAreaFraction:
		return fmt.Errorf("shape_filter: min_area_fraction %g exceeds max_area_fraction %g", c.Filter.MinAreaFraction, c.Filter.MaxAreaFraction)
	case c.Mark.Required < 1 || c.Mark.Required > 3:
		return fmt.Errorf("mark.required must be between 1 and 3, got %d", c.Mark.Required)
	}
	if err := c.Ambiguity.validate(); err != nil {
		return err
	}
	if _, err := c.Threshold.Thresholder(); err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	return nil
}

// Segmenter returns the bubble segmenter settings.
func (c Config) Segmenter() (detection.SegmenterConfig, error) {
	th, err := c.Threshold.Thresholder()
	if err != nil {
		return detection.SegmenterConfig{}, err
	}
	return detection.SegmenterConfig{
		Thresholder: th,
		CloseRadius: c.CloseRadius,
		OpenRadius:  c.OpenRadius,
		Filter:      c.Filter,
		MinBubbles:  c.MinBubbles,
	}, nil
}
