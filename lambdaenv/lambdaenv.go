// Package lambdaenv builds xrayz clients and contexts from the variables
// the Lambda runtime sets for each invocation.
package lambdaenv

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/zoobzio/xrayz"
)

// Environment variable names.
const (
	TraceIDEnv       = "_X_AMZN_TRACE_ID"
	DaemonAddressEnv = "AWS_XRAY_DAEMON_ADDRESS"
	DefaultAddress   = "127.0.0.1:2000"

	defaultLogLevel = "warn"
)

// Config holds the tracing environment of one invocation.
type Config struct {
	TraceHeader   string `envconfig:"_X_AMZN_TRACE_ID"`
	DaemonAddress string `envconfig:"AWS_XRAY_DAEMON_ADDRESS" default:"127.0.0.1:2000"`
	NamePrefix    string `envconfig:"XRAYZ_NAME_PREFIX"`
	LogLevel      string `envconfig:"XRAYZ_LOG_LEVEL" default:"warn"`
}

// Load reads Config from the environment. A variable that is set but
// empty gets the same default as an unset one.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(cfg.DaemonAddress) == "" {
		cfg.DaemonAddress = DefaultAddress
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = defaultLogLevel
	}
	return &cfg, nil
}

// Logger builds a JSON zap logger at the configured level.
func (c *Config) Logger() *zap.Logger {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		// Fallback to no-op logger
		return zap.NewNop()
	}
	return logger
}

// NewDaemonClient connects to the configured daemon address.
func (c *Config) NewDaemonClient(opts ...xrayz.ClientOption) (*xrayz.DaemonClient, error) {
	return xrayz.NewDaemonClient(c.DaemonAddress, opts...)
}

// NewContext parses the invocation's trace header and binds it to client.
func (c *Config) NewContext(client xrayz.Client) (xrayz.SubsegmentContext, error) {
	if c.TraceHeader == "" {
		return xrayz.SubsegmentContext{}, fmt.Errorf("%w: %s", xrayz.ErrMissingEnv, TraceIDEnv)
	}
	xctx, err := xrayz.NewSubsegmentContext(c.TraceHeader, client)
	if err != nil {
		return xrayz.SubsegmentContext{}, err
	}
	return xctx.WithNamePrefix(c.NamePrefix), nil
}

// NewDaemonClient loads the environment and connects to the daemon.
func NewDaemonClient(opts ...xrayz.ClientOption) (*xrayz.DaemonClient, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return cfg.NewDaemonClient(opts...)
}

// NewContext loads the environment and builds a context for client.
func NewContext(client xrayz.Client) (xrayz.SubsegmentContext, error) {
	cfg, err := Load()
	if err != nil {
		return xrayz.SubsegmentContext{}, err
	}
	xctx, err := cfg.NewContext(client)
	if err != nil {
		return xrayz.SubsegmentContext{}, err
	}
	return xctx.WithLogger(cfg.Logger()), nil
}

// Tracer is NewContext with setup failures turned into the no-op tracer.
// A nil client, including the nil *xrayz.DaemonClient returned by a failed
// NewDaemonClient, also yields the no-op tracer.
func Tracer(client xrayz.Client) xrayz.Tracer {
	if client == nil {
		return xrayz.Noop()
	}
	return xrayz.Infallible(NewContext(client))
}

// Setup connects to the configured daemon and builds a tracer for the
// current invocation. Any setup failure yields the no-op tracer and a nil
// client, and the error is returned for logging.
func Setup(opts ...xrayz.ClientOption) (xrayz.Tracer, *xrayz.DaemonClient, error) {
	client, err := NewDaemonClient(opts...)
	if err != nil {
		return xrayz.Noop(), nil, err
	}
	xctx, err := NewContext(client)
	if err != nil {
		_ = client.Close()
		return xrayz.Noop(), nil, err
	}
	return xctx, client, nil
}
