// Package service is the S3 request pipeline's entrypoint (spec.md §4.9,
// "Service glue"): it threads the classifier, the SigV4 authenticator, and
// the storage engine together on each HTTP request, and turns results and
// errors into S3-conformant responses. Grounded on the teacher's
// internal/core package (Config/ConfigOption, middleware, and router
// shape) generalized from Silo's fixed two-engine wiring to depot's
// classifier-driven dispatch.
package service

import (
	"depot/internal/sigv4"
	"depot/internal/storage"
)

// Config holds the dependencies and policy Server needs, assembled with
// functional options exactly as the teacher's internal/core.Config does.
type Config struct {
	Engine     storage.Engine
	Auth       sigv4.Engine
	Region     string
	BaseDomain string // optional; enables virtual-hosted-style addressing (SPEC_FULL §4.7)

	MaxRequestBodySize int64 // bytes; 0 means 5 GiB. Not read by the request handlers: the storage backend applies its own fixed 5 GiB single-PUT limit
}

// ConfigOption mutates a Config during construction.
type ConfigOption func(*Config)

// WithStorageEngine sets the storage backend the pipeline dispatches to.
func WithStorageEngine(engine storage.Engine) ConfigOption {
	return func(cfg *Config) { cfg.Engine = engine }
}

// WithAuthEngine sets the SigV4 authenticator.
func WithAuthEngine(auth sigv4.Engine) ConfigOption {
	return func(cfg *Config) { cfg.Auth = auth }
}

// WithRegion sets the signing region advertised by GetBucketLocation and
// expected in SigV4 credential scopes.
func WithRegion(region string) ConfigOption {
	return func(cfg *Config) { cfg.Region = region }
}

// WithBaseDomain enables virtual-hosted-style addressing for hosts ending
// in the given suffix (SPEC_FULL §4.7).
func WithBaseDomain(domain string) ConfigOption {
	return func(cfg *Config) { cfg.BaseDomain = domain }
}

// NewConfig builds a Config from the given options.
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{Region: "us-east-1"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
