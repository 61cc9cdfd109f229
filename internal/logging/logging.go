// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/sirupsen/logrus"
)

const defaultLevel = logrus.InfoLevel

// FileConfig is the optional YAML logging config file.
//
//	level: debug
//	format: json
//	timestamp_format: 2006-01-02T15:04:05Z07:00
//	fields:
//	  service: police-ingester
type FileConfig struct {
	Level           string            `yaml:"level"`
	Format          string            `yaml:"format"`
	TimestampFormat string            `yaml:"timestamp_format"`
	Fields          map[string]string `yaml:"fields"`
}

type Options struct {
	// Level overrides the file's level when set.
	Level      string
	ConfigPath string
	Output     io.Writer
}

// ReadFileConfig parses the logging config file at path.
func ReadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logging config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse logging config %s: %w", path, err)
	}
	return &fc, nil
}

// New returns a logger configured from opts. The entry carries the static
// fields of the config file; its Logger field is the underlying logger.
func New(opts Options) (*logrus.Entry, error) {
	fc := &FileConfig{}
	if opts.ConfigPath != "" {
		var err error
		if fc, err = ReadFileConfig(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	logger := logrus.New()
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	level := defaultLevel
	for _, name := range []string{opts.Level, fc.Level} {
		if name == "" {
			continue
		}
		parsed, err := logrus.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		level = parsed
		break
	}
	logger.SetLevel(level)

	tsFormat := fc.TimestampFormat
	if tsFormat == "" {
		tsFormat = time.RFC3339
	}
	switch fc.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: tsFormat})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: tsFormat})
	default:
		return nil, fmt.Errorf("unknown log format %q", fc.Format)
	}

	fields := logrus.Fields{}
	for k, v := range fc.Fields {
		fields[k] = v
	}
	return logger.WithFields(fields), nil
}
