package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		LoginURL                  string
		BehindProxy               bool
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MirrorConfig struct {
		Provider        string // "" (disabled) | "aliyun-oss"
		Endpoint        string
		Bucket          string
		AccessKeyID     string
		AccessKeySecret string
		Domain          string
		Secret          string
		Expire          time.Duration
		ExpireTimeUnit  time.Duration
		Randomize       bool
		Schedule        string // cron schedule of the sweep
		Workers         int
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		WorkDir          string
		DataFolder       string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Mirror   MirrorConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether uploaded files should be mirrored.
func (c MirrorConfig) Enabled() bool {
	return c.Provider != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Markit")
	v.SetDefault("secretKey", "wq3+nd0$2kd9=a7m!x%q-zu4w1p^c(8r)0l@ve5y_tb6s&hfj")
	v.SetDefault("frontendBaseURL", "http://localhost:4200")
	v.SetDefault("defaultFromEmail", "Markit <noreply@localhost>")
	v.SetDefault("dataFolder", "data")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.loginURL", "/login")
	v.SetDefault("server.behindProxy", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "markit")
	v.SetDefault("database.user", "markit")
	v.SetDefault("database.password", "markit")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("mirror.provider", "")
	v.SetDefault("mirror.expire", time.Hour)
	v.SetDefault("mirror.expireTimeUnit", time.Minute)
	v.SetDefault("mirror.randomize", false)
	v.SetDefault("mirror.schedule", "@every 10m")
	v.SetDefault("mirror.workers", 2)
}

// NewConfig loads the app config from defaults, an optional `config/markit.yaml`,
// an optional `config/.env.<env>` file and the environment (in increasing order of precedence).
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("database.name", "markit_test")
	}

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetConfigName("markit")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(wd, "config"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("config.ReadInConfig(): %v", err)
		}
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return configFrom(v, env, wd)
}

func configFrom(v *viper.Viper, env, wd string) *Config {
	dataFolder := v.GetString("dataFolder")
	if !filepath.IsAbs(dataFolder) {
		dataFolder = filepath.Join(wd, dataFolder)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		WorkDir:          wd,
		DataFolder:       dataFolder,
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			LoginURL:                  v.GetString("server.loginURL"),
			BehindProxy:               v.GetBool("server.behindProxy"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Mirror: MirrorConfig{
			Provider:        v.GetString("mirror.provider"),
			Endpoint:        v.GetString("mirror.endpoint"),
			Bucket:          v.GetString("mirror.bucket"),
			AccessKeyID:     v.GetString("mirror.accessKeyID"),
			AccessKeySecret: v.GetString("mirror.accessKeySecret"),
			Domain:          strings.TrimRight(v.GetString("mirror.domain"), "/"),
			Secret:          v.GetString("mirror.secret"),
			Expire:          v.GetDuration("mirror.expire"),
			ExpireTimeUnit:  v.GetDuration("mirror.expireTimeUnit"),
			Randomize:       v.GetBool("mirror.randomize"),
			Schedule:        v.GetString("mirror.schedule"),
			Workers:         v.GetInt("mirror.workers"),
		},
	}
}

// NewTestConfig returns the config used by tests: TEST env defaults, no dotenv/yaml lookups.
func NewTestConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.SetDefault("testMode", true)
	v.SetDefault("database.name", "markit_test")
	v.SetEnvPrefix("TEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return configFrom(v, "TEST", Getwd())
}
