package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"ringpipe/pkg/session"
	"ringpipe/pkg/util"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

/*
 * A config file looks like:
 *
 *   capacity: 64KiB
 *   chunk_size: 32KiB
 *   read_size: 32KiB
 *   mode: blocking
 *   backoff:
 *     min: 10us
 *     max: 5ms
 *   log_level: info
 *
 * Every field is optional; missing ones keep the values from Default.
 */
type Config struct {
	Capacity  Size          `yaml:"capacity"`
	ChunkSize Size          `yaml:"chunk_size"`
	ReadSize  Size          `yaml:"read_size"`
	Mode      Mode          `yaml:"mode"`
	Backoff   BackoffConfig `yaml:"backoff"`
	LogLevel  string        `yaml:"log_level"`
}

type BackoffConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Size is a byte count written either as a number or a humanized string.
type Size int

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := util.ParseSize(value.Value)
	if err != nil {
		return newErr(value.Line, err)
	}
	*s = Size(n)
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return util.FormatSize(int(s)), nil
}

type Mode session.Mode

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	mode, err := session.ParseMode(value.Value)
	if err != nil {
		return newErr(value.Line, err)
	}
	*m = Mode(mode)
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return session.Mode(m).String(), nil
}

func Default() *Config {
	d := session.DefaultConfig()
	return &Config{
		Capacity:  Size(d.Capacity),
		ChunkSize: Size(d.ReadSize),
		ReadSize:  Size(d.ReadSize),
		Mode:      Mode(d.Mode),
		Backoff: BackoffConfig{
			Min: d.MinBackoff,
			Max: d.MaxBackoff,
		},
		LogLevel: "info",
	}
}

// Parse decodes a config document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	config := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse a configuration file
func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open file")
	}
	config, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", configFile)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkSize > c.Capacity {
		return errors.Errorf("chunk_size %s exceeds capacity %s",
			util.FormatSize(int(c.ChunkSize)), util.FormatSize(int(c.Capacity)))
	}
	if _, err := util.NewLogger(io.Discard, c.LogLevel); err != nil {
		return err
	}
	return c.Session().Validate()
}

// Session returns the session parameters held by c.
func (c *Config) Session() session.Config {
	return session.Config{
		Capacity:   int(c.Capacity),
		ReadSize:   int(c.ReadSize),
		Mode:       session.Mode(c.Mode),
		MinBackoff: c.Backoff.Min,
		MaxBackoff: c.Backoff.Max,
	}
}

func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config error: %v", err)
	}
	return string(out)
}

func newErr(line int, err error) error {
	return errors.Errorf("Parse error on line %d:  %s", line, err.Error())
}
