package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"creditpolicy/internal/policy"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cron      CronConfig      `mapstructure:"cron"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Data      DataConfig      `mapstructure:"data"`
	Models    ModelsConfig    `mapstructure:"models"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	S3        S3Config        `mapstructure:"s3"`
	Serving   ServingConfig   `mapstructure:"serving"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	// File, when set, also writes JSON logs to a size-rotated file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DBConfig is optional; an empty DSN disables run history.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	PolicyRun string `mapstructure:"policy_run"`
}

type PolicyConfig struct {
	Costs         policy.CostSchedule `mapstructure:"costs"`
	Grid          policy.GridSpec     `mapstructure:"grid"`
	MaxReviewRate *float64            `mapstructure:"max_review_rate"`
	Workers       int                 `mapstructure:"workers"`
}

type DataConfig struct {
	ValidationFeatures string `mapstructure:"validation_features"`
	ValidationLabels   string `mapstructure:"validation_labels"`
	TestFeatures       string `mapstructure:"test_features"`
	TestLabels         string `mapstructure:"test_labels"`
}

type ModelsConfig struct {
	Candidates []string `mapstructure:"candidates"`
}

type ArtifactsConfig struct {
	// Store is "file" or "s3".
	Store         string `mapstructure:"store"`
	Dir           string `mapstructure:"dir"`
	ThresholdsKey string `mapstructure:"thresholds_key"`
	ReportKey     string `mapstructure:"report_key"`
}

type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type ServingConfig struct {
	ModelPath    string `mapstructure:"model_path"`
	FeaturesPath string `mapstructure:"features_path"`
	// FillStrategy is "zero" or "mean"; mean uses the table at FeaturesPath.
	FillStrategy string `mapstructure:"fill_strategy"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing files are
// skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.policy_run", "0 0 3 * * *")

	costs := policy.DefaultCostSchedule()
	v.SetDefault("policy.costs.default_approved", costs.DefaultApproved)
	v.SetDefault("policy.costs.good_rejected", costs.GoodRejected)
	v.SetDefault("policy.costs.review", costs.Review)
	grid := policy.DefaultGridSpec()
	v.SetDefault("policy.grid.approve_min", grid.ApproveMin)
	v.SetDefault("policy.grid.approve_max", grid.ApproveMax)
	v.SetDefault("policy.grid.approve_points", grid.ApprovePoints)
	v.SetDefault("policy.grid.reject_min", grid.RejectMin)
	v.SetDefault("policy.grid.reject_max", grid.RejectMax)
	v.SetDefault("policy.grid.reject_points", grid.RejectPoints)
	v.SetDefault("policy.workers", 0)

	v.SetDefault("data.validation_features", "data/processed/X_val.csv")
	v.SetDefault("data.validation_labels", "data/processed/y_val.csv")
	v.SetDefault("data.test_features", "data/processed/X_test.csv")
	v.SetDefault("data.test_labels", "data/processed/y_test.csv")
	v.SetDefault("models.candidates", []string{})

	v.SetDefault("artifacts.store", "file")
	v.SetDefault("artifacts.dir", "artifacts/reports")
	v.SetDefault("artifacts.thresholds_key", "thresholds_final.json")
	v.SetDefault("artifacts.report_key", "policy_summary_test.json")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.use_path_style", false)

	v.SetDefault("serving.model_path", "artifacts/models/calibrator_final.json")
	v.SetDefault("serving.features_path", "data/processed/X_train.csv")
	v.SetDefault("serving.fill_strategy", "zero")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "creditpolicy")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	// CP_POLICY_MAX_REVIEW_RATE has no default key, so AutomaticEnv alone never reaches it.
	if cfg.Policy.MaxReviewRate == nil && v.IsSet("policy.max_review_rate") {
		rate := v.GetFloat64("policy.max_review_rate")
		cfg.Policy.MaxReviewRate = &rate
	}

	return cfg, nil
}
