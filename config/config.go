// Package config loads relay settings from viper: config.yaml, the
// environment, and any bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/AbNAt-Cell/NoteTaker/stt"
)

const (
	KeyDeepgramAPIKey = "deepgram_api_key"
	KeyLanguage       = "language"
	KeyHTTPPort       = "http_port"
	KeyPolicy         = "reconnect_policy"
	KeyQueueCapacity  = "queue_capacity"
	KeyDrainTimeout   = "drain_timeout"
	KeyJoinTimeout    = "join_timeout"
	KeyFilterFile     = "filter_file"
	KeyRedisURL       = "redis_url"
	KeyRedisStream    = "redis_stream"
	KeyRedisMaxLen    = "redis_stream_maxlen"
	KeyRedisChannel   = "redis_live_channel"
	KeyDatabaseURL    = "database_url"
	KeyNATSURL        = "nats_url"
	KeyNATSSubject    = "nats_subject"
	KeyKafkaBrokers   = "kafka_brokers"
	KeyKafkaTopic     = "kafka_topic"
	KeySQLitePath     = "sqlite_path"
	KeyOTLPEndpoint   = "otlp_endpoint"
	KeyOTLPInsecure   = "otlp_insecure"
	KeyStdoutTraces   = "trace_stdout"
)

type Config struct {
	DeepgramAPIKey string
	Language       string `validate:"required"`
	HTTPPort       int    `validate:"min=1,max=65535"`

	Policy        stt.Policy
	QueueCapacity int           `validate:"min=0"`
	DrainTimeout  time.Duration `validate:"gt=0"`
	JoinTimeout   time.Duration `validate:"gt=0"`
	FilterFile    string        `validate:"omitempty,file"`

	RedisURL     string `validate:"omitempty,url"`
	RedisStream  string
	RedisMaxLen  int64 `validate:"min=0"`
	RedisChannel string
	DatabaseURL  string `validate:"omitempty,url"`
	NATSURL      string `validate:"omitempty,url"`
	NATSSubject  string
	KafkaBrokers []string `validate:"dive,hostname_port"`
	KafkaTopic   string   `validate:"required_with=KafkaBrokers"`
	SQLitePath   string

	OTLPEndpoint string `validate:"omitempty,hostname_port"`
	OTLPInsecure bool
	StdoutTraces bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLanguage, "en")
	v.SetDefault(KeyHTTPPort, 9090)
	v.SetDefault(KeyPolicy, "fail-once")
	v.SetDefault(KeyQueueCapacity, 6000)
	v.SetDefault(KeyDrainTimeout, "2s")
	v.SetDefault(KeyJoinTimeout, "2s")
	v.SetDefault(KeyRedisStream, "transcription_segments")
	v.SetDefault(KeyNATSSubject, "transcripts.live")
	v.SetDefault(KeyKafkaTopic, "transcription_segments")
}

// Load reads and validates the configuration. A missing Deepgram key is
// not an error here: each stream reports it to its producer instead.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	policy, err := stt.ParsePolicy(v.GetString(KeyPolicy))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		DeepgramAPIKey: strings.TrimSpace(v.GetString(KeyDeepgramAPIKey)),
		Language:       v.GetString(KeyLanguage),
		HTTPPort:       v.GetInt(KeyHTTPPort),
		Policy:         policy,
		QueueCapacity:  v.GetInt(KeyQueueCapacity),
		DrainTimeout:   v.GetDuration(KeyDrainTimeout),
		JoinTimeout:    v.GetDuration(KeyJoinTimeout),
		FilterFile:     v.GetString(KeyFilterFile),
		RedisURL:       v.GetString(KeyRedisURL),
		RedisStream:    v.GetString(KeyRedisStream),
		RedisMaxLen:    v.GetInt64(KeyRedisMaxLen),
		RedisChannel:   v.GetString(KeyRedisChannel),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		NATSURL:        v.GetString(KeyNATSURL),
		NATSSubject:    v.GetString(KeyNATSSubject),
		KafkaBrokers:   v.GetStringSlice(KeyKafkaBrokers),
		KafkaTopic:     v.GetString(KeyKafkaTopic),
		SQLitePath:     v.GetString(KeySQLitePath),
		OTLPEndpoint:   v.GetString(KeyOTLPEndpoint),
		OTLPInsecure:   v.GetBool(KeyOTLPInsecure),
		StdoutTraces:   v.GetBool(KeyStdoutTraces),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %s", fe.Namespace(), fe.ActualTag()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// Worker returns the worker settings for one stream.
func (c *Config) Worker() stt.WorkerConfig {
	w := stt.DefaultWorkerConfig()
	w.Policy = c.Policy
	w.QueueCapacity = c.QueueCapacity
	w.DrainTimeout = c.DrainTimeout
	w.JoinTimeout = c.JoinTimeout
	return w
}
