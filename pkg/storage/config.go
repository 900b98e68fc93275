package storage

import "time"

// Config for the storage backends
type Config struct {
	// MongoDB config
	MongoURI         string
	MongoAppDatabase string
	MongoTimeout     time.Duration
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// S3 config
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool
	S3PresignExpiry time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MongoURI:         "mongodb://localhost:27017",
		MongoAppDatabase: "app",
		MongoTimeout:     10 * time.Second,
		MongoMaxPoolSize: 100,
		MongoMinPoolSize: 2,
		S3Region:         "us-east-1",
		S3PresignExpiry:  15 * time.Minute,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}
