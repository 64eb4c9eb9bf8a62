// Package config loads ispwatch settings from an optional dotenv file and the
// process environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/ispwatch/internal/core/portal"
	"github.com/example/ispwatch/internal/core/threshold"
)

// ErrInvalidConfiguration is matched by every configuration failure.
var ErrInvalidConfiguration = threshold.ErrInvalidConfiguration

// DefaultEnvFile is read when no --env-file is given and it exists.
const DefaultEnvFile = ".env"

// Config is the complete runtime configuration.
type Config struct {
	Contract          threshold.Contract
	Aggregation       string // run-measurement flow
	ReportAggregation string // run-report flow
	MinFailures       int
	Location          *time.Location

	FCCUsername string
	FCCPassword string
	Complainant portal.Complainant

	DataDir        string
	DBPath         string
	SessionPath    string
	DiagnosticsDir string

	SpeedtestCommand string
	SpeedtestTimeout time.Duration

	ChallengeTimeout      time.Duration
	ChallengePollInterval time.Duration
	SessionTTL            time.Duration
	RunLockStaleAfter     time.Duration
	NavigationTimeout     time.Duration
	BrowserBin            string
	BrowserUserDataDir    string
	PortalSigninURL       string
	PortalComplaintURL    string

	Remote Remote
	SMTP   SMTP

	MetricsTextfile string

	LogLevel  string
	LogFormat string
}

// Remote locates the measurement host in split topology.
type Remote struct {
	Host       string
	User       string
	Path       string
	Command    string
	Timeout    time.Duration
	SSHBinary  string
	SSHOptions []string
}

// Enabled reports whether a remote measurement host is configured.
func (r Remote) Enabled() bool {
	return r.Host != ""
}

// SMTP holds email notification settings.
type SMTP struct {
	Server            string
	Port              int
	Username          string
	Password          string
	UseTLS            bool
	NotificationEmail string
}

// Enabled reports whether notifications can be sent.
func (s SMTP) Enabled() bool {
	return s.Server != "" && s.NotificationEmail != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ADVERTISED_SPEED_MBPS", "1000")
	v.SetDefault("THRESHOLD_PERCENT", "70")
	v.SetDefault("AGGREGATION", "single")
	v.SetDefault("REPORT_AGGREGATION", "min")
	v.SetDefault("MIN_FAILURES", "1")
	v.SetDefault("PERIOD_TIMEZONE", "Local")
	v.SetDefault("INTERNET_METHOD", "Fiber")
	v.SetDefault("DATA_DIR", "~/.ispwatch")
	v.SetDefault("SPEEDTEST_COMMAND", "speedtest-cli --json")
	v.SetDefault("SPEEDTEST_TIMEOUT", "2m")
	v.SetDefault("CHALLENGE_TIMEOUT", "5m")
	v.SetDefault("CHALLENGE_POLL_INTERVAL", "5s")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("RUN_LOCK_STALE_AFTER", "30m")
	v.SetDefault("NAVIGATION_TIMEOUT", "60s")
	v.SetDefault("REMOTE_COMMAND", "./ispwatch")
	v.SetDefault("REMOTE_TIMEOUT", "60s")
	v.SetDefault("SSH_BINARY", "ssh")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_USE_TLS", "true")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

// Load reads envFile (or ./.env when envFile is empty and the file exists),
// overlays the process environment, and parses the result. Only syntax is
// checked here; use ValidateEvaluation and ValidateFiling for semantics.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	path := envFile
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			path = DefaultEnvFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfiguration, path, err)
		}
	}

	return parse(v)
}

// parser collects the first error while reading typed keys.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) float(key string) float64 {
	s := p.str(key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s, "a number")
	}
	return f
}

func (p *parser) int(key string) int {
	s := p.str(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, s, "an integer")
	}
	return n
}

func (p *parser) bool(key string) bool {
	s := p.str(key)
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, s, "true or false")
	}
	return b
}

// duration accepts Go durations ("90s", "5m") or a bare number of seconds.
func (p *parser) duration(key string) time.Duration {
	s := p.str(key)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s, "a duration")
	}
	return d
}

func (p *parser) fail(key, value, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q is not %s", ErrInvalidConfiguration, key, value, want)
	}
}

func parse(v *viper.Viper) (*Config, error) {
	p := &parser{v: v}

	cfg := &Config{
		Contract: threshold.Contract{
			AdvertisedMbps:   p.float("ADVERTISED_SPEED_MBPS"),
			ThresholdPercent: p.float("THRESHOLD_PERCENT"),
		},
		Aggregation:       p.str("AGGREGATION"),
		ReportAggregation: p.str("REPORT_AGGREGATION"),
		MinFailures:       p.int("MIN_FAILURES"),

		FCCUsername: p.str("FCC_USERNAME"),
		FCCPassword: p.v.GetString("FCC_PASSWORD"),
		Complainant: portal.Complainant{
			ISPName:        p.str("ISP_NAME"),
			AccountNumber:  p.str("ISP_ACCOUNT_NUMBER"),
			ServiceAddress: p.str("SERVICE_ADDRESS"),
			Phone:          p.str("PHONE_NUMBER"),
			Email:          p.str("EMAIL"),
			FirstName:      p.str("FIRST_NAME"),
			LastName:       p.str("LAST_NAME"),
			InternetMethod: p.str("INTERNET_METHOD"),
		},

		SpeedtestCommand: p.str("SPEEDTEST_COMMAND"),
		SpeedtestTimeout: p.duration("SPEEDTEST_TIMEOUT"),

		ChallengeTimeout:      p.duration("CHALLENGE_TIMEOUT"),
		ChallengePollInterval: p.duration("CHALLENGE_POLL_INTERVAL"),
		SessionTTL:            p.duration("SESSION_TTL"),
		RunLockStaleAfter:     p.duration("RUN_LOCK_STALE_AFTER"),
		NavigationTimeout:     p.duration("NAVIGATION_TIMEOUT"),
		BrowserBin:            p.str("BROWSER_BIN"),
		BrowserUserDataDir:    expandHome(p.str("BROWSER_USER_DATA_DIR")),
		PortalSigninURL:       p.str("PORTAL_SIGNIN_URL"),
		PortalComplaintURL:    p.str("PORTAL_COMPLAINT_URL"),

		Remote: Remote{
			Host:       p.str("REMOTE_HOST"),
			User:       p.str("REMOTE_USER"),
			Path:       p.str("REMOTE_PATH"),
			Command:    p.str("REMOTE_COMMAND"),
			Timeout:    p.duration("REMOTE_TIMEOUT"),
			SSHBinary:  p.str("SSH_BINARY"),
			SSHOptions: strings.Fields(p.str("SSH_OPTIONS")),
		},
		SMTP: SMTP{
			Server:            p.str("SMTP_SERVER"),
			Port:              p.int("SMTP_PORT"),
			Username:          p.str("SMTP_USERNAME"),
			Password:          p.v.GetString("SMTP_PASSWORD"),
			UseTLS:            p.bool("SMTP_USE_TLS"),
			NotificationEmail: p.str("NOTIFICATION_EMAIL"),
		},

		MetricsTextfile: expandHome(p.str("METRICS_TEXTFILE")),
		LogLevel:        strings.ToLower(p.str("LOG_LEVEL")),
		LogFormat:       strings.ToLower(p.str("LOG_FORMAT")),
	}
	if p.err != nil {
		return nil, p.err
	}

	tz := p.str("PERIOD_TIMEZONE")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: PERIOD_TIMEZONE=%q: %v", ErrInvalidConfiguration, tz, err)
	}
	cfg.Location = loc

	cfg.DataDir = expandHome(p.str("DATA_DIR"))
	cfg.DBPath = pathOr(p.str("DB_PATH"), filepath.Join(cfg.DataDir, "history.db"))
	cfg.SessionPath = pathOr(p.str("SESSION_PATH"), filepath.Join(cfg.DataDir, "session.json"))
	cfg.DiagnosticsDir = pathOr(p.str("DIAGNOSTICS_DIR"), filepath.Join(cfg.DataDir, "diagnostics"))

	return cfg, nil
}

// ValidateEvaluation checks everything needed to measure and evaluate.
func (c *Config) ValidateEvaluation() error {
	if err := c.Contract.Validate(); err != nil {
		return err
	}
	if _, err := threshold.ParsePolicy(c.Aggregation); err != nil {
		return fmt.Errorf("AGGREGATION: %w", err)
	}
	if _, err := threshold.ParsePolicy(c.ReportAggregation); err != nil {
		return fmt.Errorf("REPORT_AGGREGATION: %w", err)
	}
	if c.MinFailures < 1 {
		return fmt.Errorf("%w: MIN_FAILURES must be at least 1, got %d", ErrInvalidConfiguration, c.MinFailures)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: DB_PATH is empty", ErrInvalidConfiguration)
	}
	return nil
}

// ValidateFiling checks the credentials and form fields a real filing needs.
// All missing keys are reported together.
func (c *Config) ValidateFiling() error {
	var missing []string
	for _, f := range []struct{ key, value string }{
		{"FCC_USERNAME", c.FCCUsername},
		{"FCC_PASSWORD", c.FCCPassword},
		{"ISP_NAME", c.Complainant.ISPName},
		{"SERVICE_ADDRESS", c.Complainant.ServiceAddress},
		{"EMAIL", c.Complainant.Email},
	} {
		if f.value == "" {
			missing = append(missing, f.key)
		}
	}
	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: missing %s", ErrInvalidConfiguration, strings.Join(missing, ", ")))
	}
	if c.ChallengeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: CHALLENGE_TIMEOUT must be positive", ErrInvalidConfiguration))
	}
	if c.ChallengePollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: CHALLENGE_POLL_INTERVAL must be positive", ErrInvalidConfiguration))
	}
	if longest := c.LongestFilingRun(); c.RunLockStaleAfter <= longest {
		errs = append(errs, fmt.Errorf("%w: RUN_LOCK_STALE_AFTER (%s) must exceed the longest filing run (%s)",
			ErrInvalidConfiguration, c.RunLockStaleAfter, longest))
	}
	return errors.Join(errs...)
}

// LongestFilingRun bounds one filing attempt: a challenge wait and a page
// load at sign-in, on the form and after submitting. A run lock younger than
// this may still belong to a live run.
func (c *Config) LongestFilingRun() time.Duration {
	return 3 * (c.ChallengeTimeout + c.NavigationTimeout)
}

// ValidateNotification checks that enabled notifications are complete.
func (c *Config) ValidateNotification() error {
	if c.SMTP.Server == "" {
		return nil
	}
	if c.SMTP.NotificationEmail == "" {
		return fmt.Errorf("%w: SMTP_SERVER is set but NOTIFICATION_EMAIL is empty", ErrInvalidConfiguration)
	}
	if c.SMTP.Username == "" && c.Complainant.Email == "" {
		return fmt.Errorf("%w: SMTP_USERNAME or EMAIL is needed as the sender", ErrInvalidConfiguration)
	}
	return nil
}

func pathOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return expandHome(value)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
