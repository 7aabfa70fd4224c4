// Package config loads the driver's own small Options struct (spec.md
// §6) from YAML, separately from whatever config format the host
// application uses for its own settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/types"
	"gopkg.in/yaml.v3"
)

// Options holds the table of driver-level configuration spec.md §6 names.
type Options struct {
	Frequency       types.Region  `yaml:"-"`
	FrequencyName   string        `yaml:"transceiver_frequency"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	CommInterval    [2]time.Duration `yaml:"-"`
	CommIntervalMS  [2]int        `yaml:"comm_interval"`
	Model           string        `yaml:"model"`
	PairingTimeout  time.Duration `yaml:"-"`
	PairingTimeoutS int           `yaml:"pairing_timeout"`
	MaxTries        int           `yaml:"max_tries"`
}

// Default returns the documented defaults from spec.md §6.
func Default() Options {
	return Options{
		Frequency:       types.RegionUS,
		FrequencyName:   "US",
		PollingInterval: 30 * time.Second,
		CommInterval:    [2]time.Duration{380 * time.Millisecond, 200 * time.Millisecond},
		CommIntervalMS:  [2]int{380, 200},
		Model:           "LaCrosse WS28xx",
		PairingTimeout:  90 * time.Second,
		PairingTimeoutS: 90,
		MaxTries:        3,
	}
}

// Load reads Options from a YAML file, filling in any field the file
// omits with the documented default.
func Load(filename string) (Options, error) {
	o := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return o, fmt.Errorf("reading driver options: %w", err)
	}

	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parsing driver options: %w", err)
	}

	if err := o.normalize(); err != nil {
		return o, err
	}

	return o, nil
}

// normalize converts the YAML-friendly scalar fields into their typed
// equivalents and validates the region name.
func (o *Options) normalize() error {
	switch o.FrequencyName {
	case "", "US":
		o.Frequency = types.RegionUS
		o.FrequencyName = "US"
	case "EU":
		o.Frequency = types.RegionEU
	default:
		return fmt.Errorf("unknown transceiver_frequency %q: must be US or EU", o.FrequencyName)
	}

	if o.PollingInterval == 0 {
		o.PollingInterval = Default().PollingInterval
	}
	if o.CommIntervalMS[0] == 0 && o.CommIntervalMS[1] == 0 {
		d := Default()
		o.CommIntervalMS = d.CommIntervalMS
	}
	o.CommInterval = [2]time.Duration{
		time.Duration(o.CommIntervalMS[0]) * time.Millisecond,
		time.Duration(o.CommIntervalMS[1]) * time.Millisecond,
	}
	if o.Model == "" {
		o.Model = Default().Model
	}
	if o.PairingTimeoutS == 0 {
		o.PairingTimeoutS = Default().PairingTimeoutS
	}
	o.PairingTimeout = time.Duration(o.PairingTimeoutS) * time.Second
	if o.MaxTries == 0 {
		o.MaxTries = Default().MaxTries
	}
	return nil
}
