package config

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host,omitempty"`
	BearerToken  string `yaml:"bearerToken,omitempty"`
	CORS         CORS   `yaml:"cors,omitempty"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes,omitempty"`
	// RunTimeoutSeconds bounds a single /run request; 0 means no limit
	RunTimeoutSeconds int `yaml:"runTimeoutSeconds,omitempty"`
}

// CORS holds Cross-Origin Resource Sharing settings
type CORS struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	AllowedMethods []string `yaml:"allowedMethods,omitempty"`
	AllowedHeaders []string `yaml:"allowedHeaders,omitempty"`
	MaxAge         int      `yaml:"maxAge,omitempty"`
}
