// Package config loads the sensor definitions shared by every world.
package config

import (
	"bytes"
	"io"
	"os"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/overlap/models"
	"github.com/aukilabs/overlap/sensor"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidConfig = "invalid-config"
)

const (
	// The sweep runs after every overlap event.
	SweepEvent = "event"

	// The sweep runs once per world frame.
	SweepFrame = "frame"
)

// Config is the content of a sensors file.
type Config struct {
	Sensors []Sensor `yaml:"sensors"`
}

// Sensor describes a sensor.
type Sensor struct {
	Name string `yaml:"name"`

	// Collider layers the sensor reacts to. Empty accepts every layer.
	Layers []string `yaml:"layers,omitempty"`

	// Entity kinds the sensor ignores.
	RejectKinds []string `yaml:"reject_kinds,omitempty"`

	// Either "event" or "frame". Defaults to "event".
	Sweep string `yaml:"sweep,omitempty"`

	// Whether entities dropped by the stale sweep produce an exit. Unset
	// follows the server default.
	StaleExit *bool `yaml:"stale_exit,omitempty"`
}

// Default returns the configuration used when no sensors file is given.
func Default() Config {
	return Config{
		Sensors: []Sensor{
			{Name: "zone"},
		},
	}
}

// Load reads and validates the sensors file at the given path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New("reading sensors file failed").
			WithTag("path", path).
			Wrap(err)
	}

	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.New("loading sensors file failed").
			WithTag("path", path).
			WithType(ErrTypeInvalidConfig).
			Wrap(err)
	}
	return c, nil
}

// Parse decodes and validates a YAML sensors definition.
func Parse(data []byte) (Config, error) {
	var c Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, errors.New("decoding yaml failed").
			WithType(ErrTypeInvalidConfig).
			Wrap(err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that sensors are named uniquely and use a known sweep mode.
func (c Config) Validate() error {
	if len(c.Sensors) == 0 {
		return errors.New("no sensor defined").
			WithType(ErrTypeInvalidConfig)
	}

	names := make(map[string]struct{}, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			return errors.New("sensor name is missing").
				WithType(ErrTypeInvalidConfig).
				WithTag("index", i)
		}

		if _, ok := names[s.Name]; ok {
			return errors.New("sensor name is duplicated").
				WithType(ErrTypeInvalidConfig).
				WithTag("sensor", s.Name)
		}
		names[s.Name] = struct{}{}

		switch s.Sweep {
		case "", SweepEvent, SweepFrame:
		default:
			return errors.New("unknown sweep mode").
				WithType(ErrTypeInvalidConfig).
				WithTag("sensor", s.Name).
				WithTag("sweep", s.Sweep)
		}
	}
	return nil
}

// Definitions converts the sensors into world sensor definitions. Sensors
// without an explicit stale_exit prune silently when silentStalePrune is set.
func (c Config) Definitions(silentStalePrune bool) []models.SensorDefinition {
	defs := make([]models.SensorDefinition, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		defs = append(defs, s.Definition(silentStalePrune))
	}
	return defs
}

func (s Sensor) Definition(silentStalePrune bool) models.SensorDefinition {
	silent := silentStalePrune
	if s.StaleExit != nil {
		silent = !*s.StaleExit
	}

	return models.SensorDefinition{
		Name:             s.Name,
		Policy:           s.Policy(),
		DeferredSweep:    s.Sweep == SweepFrame,
		SilentStalePrune: silent,
	}
}

// Policy builds the filters of the sensor.
func (s Sensor) Policy() sensor.Policy[*models.Collider, *models.Entity] {
	var p sensor.Policy[*models.Collider, *models.Entity]

	if layers := slices.Clone(s.Layers); len(layers) != 0 {
		p.RejectCollider = func(c *models.Collider) bool {
			return !slices.Contains(layers, c.Layer)
		}
	}

	if kinds := slices.Clone(s.RejectKinds); len(kinds) != 0 {
		p.RejectItem = func(e *models.Entity) bool {
			return slices.Contains(kinds, e.Kind)
		}
	}

	return p
}
