package filestore

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds the settings for the object store CSV inputs are read from.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string `yaml:"region"`

	// DefaultBucket is used for object references without a bucket part.
	DefaultBucket string `yaml:"default_bucket"`
}

// Enabled reports whether an object store is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}
