package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCert     string
	TLSKey      string
	CORSOrigins []string
	LogLevel    string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Engagement
	StoreBackend string // cassandra | memory
	NotifyMode   string // direct | kafka
	FeedMaxLimit int

	// Kafka
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration
	WorkerCount    int

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string
	MigrationsPath    string
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	// Empty TLS_CERT/TLS_KEY serve plain HTTP; empty CORS_ORIGINS disables CORS.
	viper.SetDefault("TLS_CERT", "")
	viper.SetDefault("TLS_KEY", "")
	viper.SetDefault("CORS_ORIGINS", "*")
	viper.SetDefault("LOG_LEVEL", "INFO")

	viper.SetDefault("TOKEN_TTL", "24h")

	viper.SetDefault("STORE_BACKEND", "cassandra")
	viper.SetDefault("NOTIFY_MODE", "direct")
	viper.SetDefault("FEED_MAX_LIMIT", 200)

	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC", "notification-topic")
	viper.SetDefault("KAFKA_GROUP_ID", "notification-workers")
	viper.SetDefault("KAFKA_PARTITION", 0)
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")
	viper.SetDefault("WORKER_COUNT", 0)

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "engagefeed")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	viper.SetDefault("MIGRATIONS_PATH", "./migrations/cassandra")
	// Optional: Cassandra username/password/DC can be empty

	// Load env variables. An empty variable overrides its default.
	viper.AllowEmptyEnv(true)
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:              viper.GetString("MODE"),
		ServerAddr:        viper.GetString("SERVER_ADDR"),
		TLSCert:           viper.GetString("TLS_CERT"),
		TLSKey:            viper.GetString("TLS_KEY"),
		CORSOrigins:       splitList(viper.GetString("CORS_ORIGINS")),
		LogLevel:          strings.ToUpper(viper.GetString("LOG_LEVEL")),
		JWTSecret:         viper.GetString("JWT_SECRET"),
		TokenTTL:          parseDuration(viper.GetString("TOKEN_TTL"), 24*time.Hour),
		StoreBackend:      viper.GetString("STORE_BACKEND"),
		NotifyMode:        viper.GetString("NOTIFY_MODE"),
		FeedMaxLimit:      viper.GetInt("FEED_MAX_LIMIT"),
		KafkaBroker:       viper.GetString("KAFKA_BROKER"),
		KafkaTopic:        viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:      viper.GetString("KAFKA_GROUP_ID"),
		KafkaPartition:    viper.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:       parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:      parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		WorkerCount:       viper.GetInt("WORKER_COUNT"),
		CassandraHost:     viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       viper.GetString("CASSANDRA_DC"),
		MigrationsPath:    viper.GetString("MIGRATIONS_PATH"),
	}

	if cfg.FeedMaxLimit <= 0 {
		cfg.FeedMaxLimit = 200
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
