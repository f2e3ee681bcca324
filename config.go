package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	cli "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var errConfiguration = errors.New("configuration error")

// configFile is the optional YAML file named by --config. Flags given on the
// command line take precedence over it.
type configFile struct {
	Port        int           `yaml:"port"`
	Destination string        `yaml:"destination"`
	BufferSize  int           `yaml:"buffer_size"`
	KeepAlive   time.Duration `yaml:"keepalive"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	MaxRate     int64         `yaml:"max_rate"`
	Concurrent  bool          `yaml:"concurrent"`
	LogLevel    string        `yaml:"log_level"`
}

// loadConfigFile reads and parses path. Unknown keys are rejected.
func loadConfigFile(path string) (*configFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errConfiguration, path, err)
	}
	var cfg configFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse %s: %v", errConfiguration, path, err)
	}
	// Convert a relative destination to one relative to the config file directory
	if cfg.Destination != "" && !filepath.IsAbs(cfg.Destination) {
		cfg.Destination = filepath.Join(filepath.Dir(path), cfg.Destination)
	}
	return &cfg, nil
}

// options is the resolved configuration of one run.
type options struct {
	listen      string
	target      string
	port        int
	file        string
	destination string
	askPassword bool
	wait        bool
	concurrent  bool
	bufferSize  int
	maxRate     int64
	keepAlive   time.Duration
	idleTimeout time.Duration
	logLevel    logLevel

	source fileSource
}

// resolveOptions merges the config file, if any, with the command line and
// validates the result.
func resolveOptions(c *cli.Context) (*options, error) {
	opts := &options{
		listen:     strings.TrimSpace(c.String("listen")),
		target:     strings.TrimSpace(c.String("target")),
		bufferSize: fileCopyBufferSize,
		logLevel:   levelError,
	}
	if path := c.String("config"); path != "" {
		cfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := opts.applyFile(cfg); err != nil {
			return nil, err
		}
	}

	opts.file = c.String("file")
	opts.askPassword = c.Bool("ask-password")
	opts.wait = c.Bool("wait")
	if c.IsSet("port") {
		opts.port = c.Int("port")
	}
	if c.IsSet("destination") {
		opts.destination = c.String("destination")
	}
	if c.IsSet("multi") {
		opts.concurrent = c.Bool("multi")
	}
	if c.IsSet("buffer-size") {
		opts.bufferSize = c.Int("buffer-size")
	}
	if c.IsSet("max-rate") {
		opts.maxRate = c.Int64("max-rate")
	}
	if c.Bool("verbose") {
		opts.logLevel = levelInfo
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// applyFile takes the values of cfg. destination and concurrent only concern
// a listener, so a file shared with targets does not trip their validation.
func (o *options) applyFile(cfg *configFile) error {
	o.port = cfg.Port
	if o.listen != "" {
		o.destination = cfg.Destination
		o.concurrent = cfg.Concurrent
	}
	o.maxRate = cfg.MaxRate
	o.keepAlive = cfg.KeepAlive
	o.idleTimeout = cfg.IdleTimeout
	if cfg.BufferSize != 0 {
		o.bufferSize = cfg.BufferSize
	}
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	o.logLevel = level
	return nil
}

func (o *options) validate() error {
	switch {
	case o.listen != "" && o.target != "":
		return fmt.Errorf("%w: Can't set both listen and target addresses!", errConfiguration)
	case o.listen == "" && o.target == "":
		return fmt.Errorf("%w: Must set either listen or target address!", errConfiguration)
	case o.target != "" && o.destination != "":
		return fmt.Errorf("%w: Cannot use --destination with --target; did you mean --file?", errConfiguration)
	case o.listen != "" && o.file != "":
		return fmt.Errorf("%w: Cannot use --file with --listen; did you mean --destination?", errConfiguration)
	case o.port <= 0 || o.port > 65535:
		return fmt.Errorf("%w: --port must be between 1 and 65535 (got %d)", errConfiguration, o.port)
	case o.bufferSize < minBufferSize:
		return fmt.Errorf("%w: --buffer-size must be at least %d bytes", errConfiguration, minBufferSize)
	case o.maxRate < 0:
		return fmt.Errorf("%w: --max-rate must not be negative", errConfiguration)
	case o.keepAlive < 0 || o.idleTimeout < 0:
		return fmt.Errorf("%w: keepalive and idle_timeout must not be negative", errConfiguration)
	case o.concurrent && (o.listen == "" || o.destination == ""):
		return fmt.Errorf("%w: --multi needs --listen with --destination", errConfiguration)
	}

	if o.destination != "" {
		info, err := os.Stat(o.destination)
		if err != nil {
			return fmt.Errorf("%w: %s doesn't exist", errConfiguration, o.destination)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s must be a directory", errConfiguration, o.destination)
		}
	}
	if o.file != "" {
		src, err := openFileSource(o.file)
		if err != nil {
			return err
		}
		o.source = src
	}
	return nil
}

// address joins the configured host with the port; "*" listens on every
// interface.
func (o *options) address() string {
	host := o.target
	if o.listen != "" {
		host = o.listen
		if host == "*" {
			host = ""
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(o.port))
}

// fileMode reports whether this run transfers a named file.
func (o *options) fileMode() bool { return o.file != "" || o.destination != "" }
