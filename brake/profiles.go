package brake

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

var ErrUnknownProfile = errors.New("brake: unknown vehicle profile")

// StepsPerVolt is the 12 bit DAC scale: 4096 steps across 5 volts.
const StepsPerVolt = 819.2

// Names of the built-in vehicle profiles.
const (
	ProfileKiaSoulPetrol = "kia_soul_petrol"
	ProfileKiaSoulEV     = "kia_soul_ev"
	ProfileKiaNiro       = "kia_niro"
)

// Built-in vehicle profiles. They are only handed out by value through
// BuiltinProfiles, so importers cannot alter them.
var (
	kiaSoulPetrol = Calibration{
		Name:       ProfileKiaSoulPetrol,
		Variant:    SingleChannel,
		MinCommand: 0,
		MaxCommand: 52428,
	}

	kiaSoulEV = Calibration{
		Name:         ProfileKiaSoulEV,
		Variant:      DualChannel,
		MinCommand:   0,
		MaxCommand:   1,
		StepsPerVolt: StepsPerVolt,
		SpoofHigh:    SpoofChannel{VoltageMin: 0.698, VoltageMax: 2.290},
		SpoofLow:     SpoofChannel{VoltageMin: 0.333, VoltageMax: 1.120},
	}

	kiaNiro = Calibration{
		Name:         ProfileKiaNiro,
		Variant:      DualChannel,
		MinCommand:   0,
		MaxCommand:   1,
		StepsPerVolt: StepsPerVolt,
		SpoofHigh:    SpoofChannel{VoltageMin: 0.609, VoltageMax: 2.880},
		SpoofLow:     SpoofChannel{VoltageMin: 0.279, VoltageMax: 1.386},
	}
)

// ProfileSet maps a profile name to its calibration.
type ProfileSet map[string]Calibration

func BuiltinProfiles() ProfileSet {
	return ProfileSet{
		kiaSoulPetrol.Name: kiaSoulPetrol,
		kiaSoulEV.Name:     kiaSoulEV,
		kiaNiro.Name:       kiaNiro,
	}
}

func (s ProfileSet) Lookup(name string) (Calibration, error) {
	c, ok := s[strings.TrimSpace(name)]
	if !ok {
		return Calibration{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownProfile, name, s.Names())
	}
	return c, nil
}

func (s ProfileSet) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge returns a copy of s with other's profiles added, replacing any with
// the same name.
func (s ProfileSet) Merge(other ProfileSet) ProfileSet {
	out := make(ProfileSet, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

type profileFile struct {
	Profiles []Calibration `yaml:"profiles"`
}

// ParseProfiles decodes a YAML profile list and validates every entry.
func ParseProfiles(data []byte) (ProfileSet, error) {
	var pf profileFile
	if err := yaml.UnmarshalStrict(data, &pf); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	set := make(ProfileSet, len(pf.Profiles))
	for i, c := range pf.Profiles {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("%w: profile #%d has no name", ErrInvalidCalibration, i)
		}
		if _, dup := set[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate profile %q", ErrInvalidCalibration, c.Name)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		set[c.Name] = c
	}
	return set, nil
}

func LoadProfiles(path string) (ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}
