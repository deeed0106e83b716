package speaker

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"serveturn/detector/internal/types"
)

// DefaultThreshold applies when the child's age is unknown.
const DefaultThreshold = 250.0

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Profile holds the per-age-group tuning.
type Profile struct {
	Group            string  `yaml:"group" json:"group"`
	MinMonths        int     `yaml:"min_months" json:"min_months"`
	PitchThresholdHz float64 `yaml:"pitch_threshold_hz" json:"pitch_threshold_hz"`
	ResponseWindowS  float64 `yaml:"response_window_s" json:"response_window_s"`
	MinSpeechMs      int     `yaml:"min_speech_ms" json:"min_speech_ms"`
}

// Profiles is sorted by MinMonths.
type Profiles []Profile

var defaultProfiles = mustParse(defaultProfilesYAML)

func DefaultProfiles() Profiles {
	return append(Profiles(nil), defaultProfiles...)
}

// LoadProfiles reads an age table from a YAML file.
func LoadProfiles(path string) (Profiles, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read age profiles: %w", err)
	}
	return ParseProfiles(b)
}

func ParseProfiles(b []byte) (Profiles, error) {
	var p Profiles
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse age profiles: %w", err)
	}
	if len(p) == 0 {
		return nil, types.NewConfigError("age_profiles", 0, "table is empty")
	}
	sort.SliceStable(p, func(i, j int) bool { return p[i].MinMonths < p[j].MinMonths })
	for _, row := range p {
		if row.PitchThresholdHz <= 0 {
			return nil, types.NewConfigError("pitch_threshold_hz", row.PitchThresholdHz, "group "+row.Group)
		}
		if row.ResponseWindowS <= 0 {
			return nil, types.NewConfigError("response_window_s", row.ResponseWindowS, "group "+row.Group)
		}
	}
	return p, nil
}

func mustParse(b []byte) Profiles {
	p, err := ParseProfiles(b)
	if err != nil {
		panic(err)
	}
	return p
}

// ForAge returns the last row whose MinMonths does not exceed months. Ages
// below the first row use the first row.
func (p Profiles) ForAge(months int) Profile {
	out := p[0]
	for _, row := range p {
		if months >= row.MinMonths {
			out = row
		}
	}
	return out
}

// ThresholdForAge maps an optional age in months to a child pitch threshold.
func (p Profiles) ThresholdForAge(months *int) float64 {
	if months == nil {
		return DefaultThreshold
	}
	return p.ForAge(*months).PitchThresholdHz
}

// ThresholdForAge uses the built-in table.
func ThresholdForAge(months *int) float64 { return defaultProfiles.ThresholdForAge(months) }
