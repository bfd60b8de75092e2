//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package elasticsearch

import "time"

// clientBuilder builds a Client from builder options.
type clientBuilder func(builderOpts ...ClientBuilderOpt) (Client, error)

// globalBuilder is the function used to build the default Elasticsearch client.
var globalBuilder clientBuilder = DefaultClientBuilder

// SetClientBuilder sets the global Elasticsearch client builder.
func SetClientBuilder(builder clientBuilder) {
	globalBuilder = builder
}

// GetClientBuilder gets the global Elasticsearch client builder.
func GetClientBuilder() clientBuilder {
	return globalBuilder
}

// ClientBuilderOpt is the option for the Elasticsearch client builder.
type ClientBuilderOpt func(*ClientBuilderOpts)

// ClientBuilderOpts is the options for the Elasticsearch client builder.
type ClientBuilderOpts struct {
	// Addresses is the list of Elasticsearch node addresses.
	Addresses []string
	// Username is the username for authentication.
	Username string
	// Password is the password for authentication.
	Password string
	// APIKey is the API key for authentication.
	APIKey string
	// CertificateFingerprint is the certificate fingerprint for authentication.
	CertificateFingerprint string
	// CompressRequestBody is the flag to enable request body compression.
	CompressRequestBody bool
	// EnableMetrics is the flag to enable metrics.
	EnableMetrics bool
	// EnableDebugLogger is the flag to enable debug logger.
	EnableDebugLogger bool
	// RetryOnStatus is the list of status codes to retry on.
	RetryOnStatus []int
	// MaxRetries is the maximum number of retries.
	MaxRetries int
	// RetryOnTimeout enables retry when a request times out.
	RetryOnTimeout bool
	// RequestTimeout is the per-request timeout.
	RequestTimeout time.Duration
	// IndexPrefix is the prefix applied to index names owned by this client.
	IndexPrefix string
	// VectorDimension is the embedding vector dimension used by knn mappings.
	VectorDimension int

	// ExtraOptions allows custom builders to accept extra parameters.
	ExtraOptions []any
}

// WithAddresses sets node addresses.
func WithAddresses(addresses []string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.Addresses = addresses }
}

// WithUsername sets username.
func WithUsername(username string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.Username = username }
}

// WithPassword sets password.
func WithPassword(password string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.Password = password }
}

// WithAPIKey sets API key.
func WithAPIKey(apiKey string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.APIKey = apiKey }
}

// WithCertificateFingerprint sets TLS certificate fingerprint.
func WithCertificateFingerprint(fp string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.CertificateFingerprint = fp }
}

// WithCompressRequestBody toggles request body compression.
func WithCompressRequestBody(enabled bool) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.CompressRequestBody = enabled }
}

// WithEnableMetrics toggles transport metrics.
func WithEnableMetrics(enabled bool) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.EnableMetrics = enabled }
}

// WithEnableDebugLogger toggles debug logger.
func WithEnableDebugLogger(enabled bool) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.EnableDebugLogger = enabled }
}

// WithRetryOnStatus sets HTTP retry status codes.
func WithRetryOnStatus(codes []int) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.RetryOnStatus = codes }
}

// WithMaxRetries sets max retries.
func WithMaxRetries(n int) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.MaxRetries = n }
}

// WithRetryOnTimeout toggles retry-on-timeout behavior.
func WithRetryOnTimeout(enabled bool) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.RetryOnTimeout = enabled }
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.RequestTimeout = d }
}

// WithIndexPrefix sets the index name prefix.
func WithIndexPrefix(prefix string) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.IndexPrefix = prefix }
}

// WithVectorDimension sets the embedding vector dimension.
func WithVectorDimension(dim int) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.VectorDimension = dim }
}

// WithExtraOptions adds extra, builder-specific options.
func WithExtraOptions(extraOptions ...any) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.ExtraOptions = append(opts.ExtraOptions, extraOptions...)
	}
}
