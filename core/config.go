package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf is the global application configuration. It is set by NewConfig.
var Conf *Config

type (
	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugAddr                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	PushConfig struct {
		VAPIDPublicKey  string
		VAPIDPrivateKey string
		Subscriber      string // contact mailto for the VAPID claims
	}

	WhatsAppConfig struct {
		APIBase     string
		Token       string
		PhoneID     string
		DefaultLang string
	}

	DispatchConfig struct {
		PollInterval time.Duration
		Channel      string // Postgres NOTIFY channel for due announcements
	}

	Config struct {
		Debug    bool
		TestMode bool
		Env      string
		Build    string
		AppName  string
		WorkDir  string

		SecretKey                 []byte
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Push     PushConfig
		WhatsApp WhatsAppConfig
		Dispatch DispatchConfig
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// NewConfig loads the configuration from defaults, an optional
// config/.env.<env> file and environment variables; it also sets the global Conf.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Akela")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "h^0y=b+qt1b(e&3#2m$*pgzcr@_9yjm0o5qe7g8u2d!ks4x6vw")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugAddr", ":8001")
	v.SetDefault("server.shutdownTimeout", 20*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "akela")
	v.SetDefault("database.user", "akela")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("push.vapidPublicKey", "")
	v.SetDefault("push.vapidPrivateKey", "")
	v.SetDefault("push.subscriber", "mailto:noreply@localhost")

	v.SetDefault("whatsapp.apiBase", "https://graph.facebook.com/v17.0")
	v.SetDefault("whatsapp.token", "")
	v.SetDefault("whatsapp.phoneID", "")
	v.SetDefault("whatsapp.defaultLang", "en")

	v.SetDefault("dispatch.pollInterval", time.Minute)
	v.SetDefault("dispatch.channel", "announcement_due")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	testMode := false
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

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
	v.AutomaticEnv()

	conf := &Config{
		Debug:    v.GetBool("debug"),
		TestMode: testMode,
		Env:      env,
		Build:    v.GetString("build"),
		AppName:  v.GetString("appName"),
		WorkDir:  wd,

		SecretKey:       []byte(v.GetString("secretKey")),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("appName"),
			Address: v.GetString("defaultFromEmail"),
		},
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Addr:                      v.GetString("server.addr"),
			DebugAddr:                 v.GetString("server.debugAddr"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  v.GetString("push.vapidPublicKey"),
			VAPIDPrivateKey: v.GetString("push.vapidPrivateKey"),
			Subscriber:      v.GetString("push.subscriber"),
		},
		WhatsApp: WhatsAppConfig{
			APIBase:     v.GetString("whatsapp.apiBase"),
			Token:       v.GetString("whatsapp.token"),
			PhoneID:     v.GetString("whatsapp.phoneID"),
			DefaultLang: v.GetString("whatsapp.defaultLang"),
		},
		Dispatch: DispatchConfig{
			PollInterval: v.GetDuration("dispatch.pollInterval"),
			Channel:      v.GetString("dispatch.channel"),
		},
	}
	if testMode {
		conf.Database.Name += "_test"
	}

	Conf = conf
	return conf
}
