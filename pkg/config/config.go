package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Detector   DetectorConfig
	Insight    InsightConfig
	Resolution ResolutionConfig
	TimeGrid   TimeGridConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// DetectorConfig holds the severity policy for time-overlap conflicts.
// The thresholds are product policy, not derived values; they are exposed
// here so deployments can tune them without a rebuild.
type DetectorConfig struct {
	// CriticalPriority names the event priority that escalates any overlap
	// with it to critical severity.
	CriticalPriority string
	// ErrorOverlapRatio is the fraction of the shorter event's duration at
	// which an overlap escalates from warning to error.
	ErrorOverlapRatio float64
}

// InsightConfig drives revenue-impact estimation and client priority tiers.
type InsightConfig struct {
	// Rates maps a service type to an hourly rate. DefaultRate applies when
	// the type is absent.
	Rates       map[string]float64
	DefaultRate float64
	// ClientTiers maps a client name to a priority score, higher first.
	// DefaultTier applies to unknown clients.
	ClientTiers map[string]int
	DefaultTier int
}

// ResolutionConfig controls resolution persistence behaviour.
type ResolutionConfig struct {
	// TTL becomes expires_at on new resolutions. Zero keeps them forever.
	TTL time.Duration
	// SweepInterval drives the background expired-resolution sweep.
	SweepInterval time.Duration
	HistoryLimit  int
}

// TimeGridConfig controls drag/drop and resize time mapping.
type TimeGridConfig struct {
	SlotSize    time.Duration
	SnapStep    time.Duration
	MinDuration time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Detector = DetectorConfig{
		CriticalPriority:  strings.ToLower(v.GetString("DETECTOR_CRITICAL_PRIORITY")),
		ErrorOverlapRatio: v.GetFloat64("DETECTOR_ERROR_OVERLAP_RATIO"),
	}

	cfg.Insight = InsightConfig{
		Rates:       parseRates(v.GetString("INSIGHT_RATES")),
		DefaultRate: v.GetFloat64("INSIGHT_DEFAULT_RATE"),
		ClientTiers: parseTiers(v.GetString("INSIGHT_CLIENT_TIERS")),
		DefaultTier: v.GetInt("INSIGHT_DEFAULT_TIER"),
	}

	cfg.Resolution = ResolutionConfig{
		TTL:           parseDuration(v.GetString("RESOLUTION_TTL"), 720*time.Hour),
		SweepInterval: parseDuration(v.GetString("RESOLUTION_SWEEP_INTERVAL"), time.Hour),
		HistoryLimit:  v.GetInt("RESOLUTION_HISTORY_LIMIT"),
	}

	cfg.TimeGrid = TimeGridConfig{
		SlotSize:    parseDuration(v.GetString("TIMEGRID_SLOT_SIZE"), time.Hour),
		SnapStep:    parseDuration(v.GetString("TIMEGRID_SNAP_STEP"), 15*time.Minute),
		MinDuration: parseDuration(v.GetString("TIMEGRID_MIN_DURATION"), 15*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "crm_scheduling")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DETECTOR_CRITICAL_PRIORITY", "urgent")
	v.SetDefault("DETECTOR_ERROR_OVERLAP_RATIO", 0.5)

	v.SetDefault("INSIGHT_RATES", "consultation:150,meeting:100,follow-up:75,demo:200")
	v.SetDefault("INSIGHT_DEFAULT_RATE", 100)
	v.SetDefault("INSIGHT_CLIENT_TIERS", "")
	v.SetDefault("INSIGHT_DEFAULT_TIER", 5)

	v.SetDefault("RESOLUTION_TTL", "720h")
	v.SetDefault("RESOLUTION_SWEEP_INTERVAL", "1h")
	v.SetDefault("RESOLUTION_HISTORY_LIMIT", 50)

	v.SetDefault("TIMEGRID_SLOT_SIZE", "1h")
	v.SetDefault("TIMEGRID_SNAP_STEP", "15m")
	v.SetDefault("TIMEGRID_MIN_DURATION", "15m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// parseRates reads "type:rate,type:rate" pairs.
func parseRates(raw string) map[string]float64 {
	rates := make(map[string]float64)
	for _, pair := range splitAndTrim(raw) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		rates[strings.ToLower(parts[0])] = rate
	}
	return rates
}

// parseTiers reads "client:tier,client:tier" pairs.
func parseTiers(raw string) map[string]int {
	tiers := make(map[string]int)
	for _, pair := range splitAndTrim(raw) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		tier, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		tiers[parts[0]] = tier
	}
	return tiers
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
