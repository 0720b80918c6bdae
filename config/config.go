package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"tenderned-feed"`
	Port                          int      `env:"PORT" env-default:"3010"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`

	// PostgreSQL (source + master schemas)
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"VALAN_DB_HOST" env-default:""`
	DatabasePort                string        `env:"VALAN_DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"VALAN_DB_USER" env-default:"postgres"`
	DatabasePassword            string        `env:"VALAN_DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"VALAN_DB_NAME" env-default:"postgres"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"require"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`

	// Redis (batch run serialization)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka (merge event emission)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"valan-feed-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Feed processing
	FeedSchedulerEnabled bool          `env:"FEED_SCHEDULER_ENABLED" env-default:"true"`
	FeedInterval         time.Duration `env:"FEED_INTERVAL" env-default:"1h"`
	FeedLockTTL          time.Duration `env:"FEED_LOCK_TTL" env-default:"10m"`
	FeedBatchSize        int           `env:"FEED_BATCH_SIZE" env-default:"500"`

	// Tracing
	TracingEnabled     bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingEndpoint    string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4318"`
	TracingServiceName string `env:"TRACING_SERVICE_NAME" env-default:"tenderned-feed"`
}
