// Package config builds a FlagCache from process environment.
//
//	FLAGCACHE_NAMESPACE=checkout          (required)
//	FLAGCACHE_URL=https://flags:3000      (required)
//	FLAGCACHE_FORMAT=json                 json | msgpack | cbor | protobuf
//	FLAGCACHE_API_KEY=...
//	FLAGCACHE_REFRESH_INTERVAL=30s
//	FLAGCACHE_FETCH_TIMEOUT=5s
//	FLAGCACHE_HTTP2=false
//	FLAGCACHE_MAX_BODY=4194304
//
// Values may be seeded from .env files; variables already set in the
// environment win.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/unkn0wn-root/flagcache"
	"github.com/unkn0wn-root/flagcache/source"
	"github.com/unkn0wn-root/flagcache/source/httpsource"
)

const Prefix = "FLAGCACHE_"

var (
	ErrParsingConfig = errors.New("config: failed to parse environment")
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

type Config struct {
	Namespace       string        `env:"NAMESPACE,required"`
	URL             string        `env:"URL,required"`
	Format          string        `env:"FORMAT" envDefault:"json"`
	APIKey          string        `env:"API_KEY"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"30s"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s"`
	HTTP2           bool          `env:"HTTP2" envDefault:"false"`
	MaxBody         int           `env:"MAX_BODY" envDefault:"4194304"`
}

// Load reads FLAGCACHE_* variables after seeding the environment from the
// given .env files. With no files, a ".env" in the working directory is
// loaded when present.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load() // optional
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("config: load env files: %w", err)
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap reads configuration from m instead of the process environment.
// Keys carry the FLAGCACHE_ prefix.
func FromMap(m map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: m})
}

func parse(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := source.ValidateNamespace(c.Namespace); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	switch httpsource.Format(c.Format) {
	case httpsource.FormatJSON, httpsource.FormatMsgpack, httpsource.FormatCBOR, httpsource.FormatProtobuf:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}
	if c.RefreshInterval < 0 || c.FetchTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.MaxBody < 0 {
		return fmt.Errorf("%w: negative max body", ErrInvalidConfig)
	}
	return nil
}

// NewCache builds the HTTP source and the cache. logger and hooks may be nil.
func (c Config) NewCache(logger flagcache.Logger, hooks flagcache.Hooks) (flagcache.FlagCache, error) {
	src, err := c.NewSource()
	if err != nil {
		return nil, err
	}
	return flagcache.New(flagcache.Options{
		Namespace:       c.Namespace,
		Source:          src,
		RefreshInterval: c.RefreshInterval,
		FetchTimeout:    c.FetchTimeout,
		Logger:          logger,
		Hooks:           hooks,
	})
}

func (c Config) NewSource() (*httpsource.Source, error) {
	hc := &httpsource.Config{
		BaseURL: c.URL,
		Format:  httpsource.Format(c.Format),
		APIKey:  c.APIKey,
		MaxBody: c.MaxBody,
	}
	if c.HTTP2 {
		client, err := httpsource.NewHTTP2Client(c.FetchTimeout, nil)
		if err != nil {
			return nil, err
		}
		hc.Client = client
	}
	return httpsource.New(*hc)
}
