// Package config handles application configuration.
package config

// file: internal/config/config.go

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/cowgnition/internal/eventerr"
	"github.com/dkoosis/cowgnition/internal/logging"
)

var logger = logging.GetLogger("config")

// Settings is the root configuration for an EventGate instance, loaded from a
// YAML file (gopkg.in/yaml.v3; YAML is a JSON superset so JSON config files
// load unchanged).
type Settings struct {
	Server ServerConfig `yaml:"server"`

	// SchemaURIField is an ordered list of dotted paths; the first one
	// present on an event is used as its schema identifier. Default
	// ["$schema"].
	SchemaURIField []string `yaml:"schema_uri_field"`
	// SchemaBaseURIs is the ordered list of base URIs tried when resolving a
	// relative SchemaRef.
	SchemaBaseURIs []string `yaml:"schema_base_uris"`
	// SchemaFileExtension is appended to a ref with no extension.
	SchemaFileExtension string `yaml:"schema_file_extension"`
	// AllowAbsoluteSchemaURIs, if false, rejects any ref that already carries
	// a URI scheme.
	AllowAbsoluteSchemaURIs bool `yaml:"allow_absolute_schema_uris"`
	// SchemaPrecacheURIs lists refs to compile eagerly at startup.
	SchemaPrecacheURIs []string `yaml:"schema_precache_uris"`
	// MetaSchemaIDRegex matches the $id of a fetched schema that should be
	// installed as a meta-schema instead of a normal validator.
	MetaSchemaIDRegex string `yaml:"meta_schema_id_regex"`

	// StreamField is an ordered list of dotted paths naming the destination
	// stream. If empty, the stream defaults to the sanitized schema URI.
	StreamField []string `yaml:"stream_field"`
	// TopicPrefix is prepended to the stream name to form the broker topic.
	TopicPrefix string `yaml:"topic_prefix"`
	// IDField, DtField, KeyField, PartitionField are optional extractor
	// paths used for logging, the produced message's timestamp, the broker
	// key, and the broker partition respectively.
	IDField        []string `yaml:"id_field"`
	DtField        []string `yaml:"dt_field"`
	KeyField       []string `yaml:"key_field"`
	PartitionField []string `yaml:"partition_field"`

	// StreamConfigURI points at the StreamConfig document. If unset,
	// authorization is disabled entirely.
	StreamConfigURI string `yaml:"stream_config_uri"`

	// ErrorSchemaURI and ErrorStream are the schema ref and stream used when
	// emitting error events.
	ErrorSchemaURI string `yaml:"error_schema_uri"`
	ErrorStream    string `yaml:"error_stream"`
	// EmitterID identifies this service instance in emitted error events.
	EmitterID string `yaml:"emitter_id"`

	Producer ProducerConfig `yaml:"producer"`

	// StrictInvalidDisposition, if true, returns HTTP 400 when any event in a
	// batch is invalid, instead of the default 207 partial-success behavior.
	StrictInvalidDisposition bool `yaml:"strict_invalid_disposition"`

	// ServiceVersion and ServiceHome back the /_info/version and
	// /_info/home endpoints.
	ServiceVersion string `yaml:"service_version"`
	ServiceHome    string `yaml:"service_home"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProducerConfig holds client-library-specific producer settings: Conf for
// both variants, GuaranteedConf/HastyConf per variant. The in-memory broker
// in internal/producer does not read any of these settings.
type ProducerConfig struct {
	Conf           map[string]interface{} `yaml:"conf"`
	TopicConf      map[string]interface{} `yaml:"topic_conf"`
	GuaranteedConf map[string]interface{} `yaml:"guaranteed_conf"`
	HastyConf      map[string]interface{} `yaml:"hasty_conf"`
}

// New creates a new configuration with sane defaults, matching the shape a
// zero-config local run needs.
func New() *Settings {
	logger.Debug("Creating new configuration settings with defaults.")
	return &Settings{
		Server: ServerConfig{
			Name:            "eventgate",
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		SchemaURIField:          []string{"$schema"},
		SchemaFileExtension:     ".yaml",
		AllowAbsoluteSchemaURIs: false,
		MetaSchemaIDRegex:       `^https?://json-schema\.org/`,
		EmitterID:               "eventgate",
		ServiceVersion:          "dev",
	}
}

// GetServerName returns the configured server name.
func (s *Settings) GetServerName() string {
	return s.Server.Name
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	logger.Debug("Attempting to expand path", "input_path", path)
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		wrapped := errors.Wrap(err, "ExpandPath: failed to get user home directory")
		detailed := eventerr.Wrap(wrapped, eventerr.InternalError, "failed to expand config path")
		logger.Error("Failed to get user home directory for path expansion.", "error", fmt.Sprintf("%+v", detailed))
		return "", detailed
	}

	expanded := filepath.Join(home, path[1:])
	logger.Debug("Path expanded successfully", "input_path", path, "expanded_path", expanded)
	return expanded, nil
}
