package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Engine        string
	Host          string
	Port          string
	User          string
	Password      string
	AdminUser     string
	AdminPassword string
	Name          string
	DisableTLS    bool
}

type Config struct {
	Debug                         bool
	TestMode                      bool
	AppName                       string
	SecretKey                     string
	Env                           string
	Build                         string
	WorkDir                       string
	MediaRoot                     string
	RollbarToken                  string
	SendgridApiKey                string
	FrontendBaseURL               string
	BackendBaseURL                string
	DefaultFromEmail              mail.Address
	PasswordResetTimeoutDelta     time.Duration
	EmailVerificationTimeoutDelta time.Duration

	Server struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
		AuthRateLimit             int // requests per minute per client IP on the public auth routes; 0 disables
	}

	Database DatabaseConfig

	AI struct {
		GeminiAPIKey          string
		Model                 string
		Language              string
		RequestsPerSecond     float64
		Burst                 int
		GradingTimeout        time.Duration
		FeedbackTimeout       time.Duration
		MaxConcurrentGradings int
	}

	Jobs struct {
		AttemptSweepInterval time.Duration
		AttemptGracePeriod   time.Duration
		TokenPurgeInterval   time.Duration
	}
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "E-Learning")
	v.SetDefault("secretKey", "9f#l2r^w0e!ms1k&v3u*8dxq(7o=tz_6y@bn4hc+ga5p)ij")
	v.SetDefault("build", "dev")
	v.SetDefault("workDir", "")
	v.SetDefault("mediaRoot", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("backendBaseURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "E-Learning <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("emailVerificationTimeoutDelta", 24*time.Hour)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.corsOrigins", "")
	v.SetDefault("server.authRateLimit", 20)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "elearning")
	v.SetDefault("database.password", "elearning")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.name", "elearning")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("ai.geminiAPIKey", "")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.language", "Vietnamese")
	v.SetDefault("ai.requestsPerSecond", 2.0)
	v.SetDefault("ai.burst", 4)
	v.SetDefault("ai.gradingTimeout", 180*time.Second)
	v.SetDefault("ai.feedbackTimeout", 30*time.Second)
	v.SetDefault("ai.maxConcurrentGradings", 4)

	v.SetDefault("jobs.attemptSweepInterval", 5*time.Minute)
	v.SetDefault("jobs.attemptGracePeriod", 10*time.Minute)
	v.SetDefault("jobs.tokenPurgeInterval", time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := os.Getenv(env + "_WORKDIR")
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			log.Fatalf("config.os.Getwd: %v", err)
		}
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:                         v.GetBool("debug"),
		TestMode:                      v.GetBool("testMode"),
		AppName:                       v.GetString("appName"),
		SecretKey:                     v.GetString("secretKey"),
		Env:                           env,
		Build:                         v.GetString("build"),
		WorkDir:                       wd,
		MediaRoot:                     v.GetString("mediaRoot"),
		RollbarToken:                  v.GetString("rollbarToken"),
		SendgridApiKey:                v.GetString("sendgridApiKey"),
		FrontendBaseURL:               strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		BackendBaseURL:                strings.TrimSuffix(v.GetString("backendBaseURL"), "/"),
		PasswordResetTimeoutDelta:     v.GetDuration("passwordResetTimeoutDelta"),
		EmailVerificationTimeoutDelta: v.GetDuration("emailVerificationTimeoutDelta"),
	}
	if conf.MediaRoot == "" {
		conf.MediaRoot = filepath.Join(wd, "media")
	}

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	conf.DefaultFromEmail = *from

	conf.Server.Host = v.GetString("server.host")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Server.AuthRateLimit = v.GetInt("server.authRateLimit")
	for _, origin := range strings.Split(v.GetString("server.corsOrigins"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			conf.Server.CORSOrigins = append(conf.Server.CORSOrigins, origin)
		}
	}

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.AI.GeminiAPIKey = v.GetString("ai.geminiAPIKey")
	conf.AI.Model = v.GetString("ai.model")
	conf.AI.Language = v.GetString("ai.language")
	conf.AI.RequestsPerSecond = v.GetFloat64("ai.requestsPerSecond")
	conf.AI.Burst = v.GetInt("ai.burst")
	conf.AI.GradingTimeout = v.GetDuration("ai.gradingTimeout")
	conf.AI.FeedbackTimeout = v.GetDuration("ai.feedbackTimeout")
	conf.AI.MaxConcurrentGradings = v.GetInt("ai.maxConcurrentGradings")

	conf.Jobs.AttemptSweepInterval = v.GetDuration("jobs.attemptSweepInterval")
	conf.Jobs.AttemptGracePeriod = v.GetDuration("jobs.attemptGracePeriod")
	conf.Jobs.TokenPurgeInterval = v.GetDuration("jobs.tokenPurgeInterval")

	return conf
}

// Address returns "host:port".
func (d DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%s", d.Host, d.Port)
}
