package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/ini.v1"
)

// Settings is the process configuration read from settings.ini
type Settings struct {
	Game     GameSettings
	Schedule ScheduleSettings
	Mining   MiningSettings
	Upgrade  UpgradeSettings
	Login    LoginSettings
	Server   ServerSettings
	Database DatabaseSettings
	Logging  LoggingSettings
	Metrics  MetricsSettings
}

type GameSettings struct {
	BaseURL     string
	HTTPTimeout time.Duration
	MaxAttempts int
}

type ScheduleSettings struct {
	AuthorizeEvery  time.Duration
	AuthorizeRetry  time.Duration
	DailyBonusEvery time.Duration
	PromoEvery      time.Duration
	UpgradeEvery    time.Duration
	ChannelsEvery   time.Duration
	Workers         int
}

type MiningSettings struct {
	CountMin      int64
	CountMax      int64
	RegenPerSec   int64
	FallbackDelay time.Duration
}

type UpgradeSettings struct {
	RatioCeiling        decimal.Decimal
	MaxPurchasesPerTick int
}

type LoginSettings struct {
	MaxAttempts  int
	Wait         time.Duration
	PollInterval time.Duration
	RetryPause   time.Duration
}

type ServerSettings struct {
	Enabled bool
	Addr    string
}

type DatabaseSettings struct {
	Path string
}

type LoggingSettings struct {
	Level string
	Dir   string
}

type MetricsSettings struct {
	Enabled bool
	Path    string
}

// NewDefaultSettings returns the settings used when no file is present
func NewDefaultSettings() *Settings {
	return &Settings{
		Game: GameSettings{
			BaseURL:     "https://backend.babydogepawsbot.com",
			HTTPTimeout: 30 * time.Second,
			MaxAttempts: 2,
		},
		Schedule: ScheduleSettings{
			AuthorizeEvery:  time.Hour,
			AuthorizeRetry:  time.Minute,
			DailyBonusEvery: time.Hour,
			PromoEvery:      time.Hour,
			UpgradeEvery:    3 * time.Minute,
			ChannelsEvery:   time.Hour,
			Workers:         64,
		},
		Mining: MiningSettings{
			CountMin:      80,
			CountMax:      120,
			RegenPerSec:   4,
			FallbackDelay: time.Minute,
		},
		Upgrade: UpgradeSettings{
			RatioCeiling:        decimal.RequireFromString("1517.26"),
			MaxPurchasesPerTick: 100,
		},
		Login: LoginSettings{
			MaxAttempts:  3,
			Wait:         5 * time.Minute,
			PollInterval: 5 * time.Second,
			RetryPause:   3 * time.Second,
		},
		Server:   ServerSettings{Enabled: true, Addr: "127.0.0.1:8089"},
		Database: DatabaseSettings{Path: "data/pawsfarm.db"},
		Logging:  LoggingSettings{Level: "INFO", Dir: "logs"},
		Metrics:  MetricsSettings{Enabled: true, Path: "/metrics"},
	}
}

// Load reads settings.ini from path. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	s := NewDefaultSettings()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	game := cfg.Section("Game")
	s.Game.BaseURL = game.Key("base_url").MustString(s.Game.BaseURL)
	s.Game.HTTPTimeout = game.Key("http_timeout").MustDuration(s.Game.HTTPTimeout)
	s.Game.MaxAttempts = game.Key("max_attempts").MustInt(s.Game.MaxAttempts)

	sched := cfg.Section("Schedule")
	s.Schedule.AuthorizeEvery = sched.Key("authorize_every").MustDuration(s.Schedule.AuthorizeEvery)
	s.Schedule.AuthorizeRetry = sched.Key("authorize_retry").MustDuration(s.Schedule.AuthorizeRetry)
	s.Schedule.DailyBonusEvery = sched.Key("daily_bonus_every").MustDuration(s.Schedule.DailyBonusEvery)
	s.Schedule.PromoEvery = sched.Key("promo_every").MustDuration(s.Schedule.PromoEvery)
	s.Schedule.UpgradeEvery = sched.Key("upgrade_every").MustDuration(s.Schedule.UpgradeEvery)
	s.Schedule.ChannelsEvery = sched.Key("channels_every").MustDuration(s.Schedule.ChannelsEvery)
	s.Schedule.Workers = sched.Key("workers").MustInt(s.Schedule.Workers)

	mining := cfg.Section("Mining")
	s.Mining.CountMin = mining.Key("count_min").MustInt64(s.Mining.CountMin)
	s.Mining.CountMax = mining.Key("count_max").MustInt64(s.Mining.CountMax)
	s.Mining.RegenPerSec = mining.Key("energy_regen_per_second").MustInt64(s.Mining.RegenPerSec)
	s.Mining.FallbackDelay = mining.Key("fallback_delay").MustDuration(s.Mining.FallbackDelay)

	upgrade := cfg.Section("Upgrade")
	if raw := upgrade.Key("ratio_ceiling").String(); raw != "" {
		ceiling, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid Upgrade.ratio_ceiling %q: %w", raw, err)
		}
		s.Upgrade.RatioCeiling = ceiling
	}
	s.Upgrade.MaxPurchasesPerTick = upgrade.Key("max_purchases_per_tick").MustInt(s.Upgrade.MaxPurchasesPerTick)

	login := cfg.Section("Login")
	s.Login.MaxAttempts = login.Key("max_attempts").MustInt(s.Login.MaxAttempts)
	s.Login.Wait = login.Key("wait").MustDuration(s.Login.Wait)
	s.Login.PollInterval = login.Key("poll_interval").MustDuration(s.Login.PollInterval)
	s.Login.RetryPause = login.Key("retry_pause").MustDuration(s.Login.RetryPause)

	server := cfg.Section("Server")
	s.Server.Enabled = server.Key("enabled").MustBool(s.Server.Enabled)
	s.Server.Addr = server.Key("addr").MustString(s.Server.Addr)

	s.Database.Path = cfg.Section("Database").Key("path").MustString(s.Database.Path)

	logging := cfg.Section("Logging")
	s.Logging.Level = logging.Key("level").MustString(s.Logging.Level)
	s.Logging.Dir = logging.Key("dir").MustString(s.Logging.Dir)

	metrics := cfg.Section("Metrics")
	s.Metrics.Enabled = metrics.Key("enabled").MustBool(s.Metrics.Enabled)
	s.Metrics.Path = metrics.Key("path").MustString(s.Metrics.Path)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks cross-field constraints
func (s *Settings) Validate() error {
	if err := ValidateMineRange(s.Mining.CountMin, s.Mining.CountMax); err != nil {
		return err
	}
	if s.Mining.RegenPerSec <= 0 {
		return fmt.Errorf("Mining.energy_regen_per_second must be positive")
	}
	if s.Login.MaxAttempts < 1 {
		return fmt.Errorf("Login.max_attempts must be at least 1")
	}
	if s.Game.MaxAttempts < 1 {
		return fmt.Errorf("Game.max_attempts must be at least 1")
	}
	if s.Upgrade.RatioCeiling.IsNegative() {
		return fmt.Errorf("Upgrade.ratio_ceiling must not be negative")
	}
	return nil
}

// ValidateMineRange requires 0 < min < max
func ValidateMineRange(min, max int64) error {
	if min <= 0 || min >= max {
		return fmt.Errorf("mine count range [%d, %d) is invalid: need 0 < min < max", min, max)
	}
	return nil
}

// SaveToINI writes settings back to an ini file
func (s *Settings) SaveToINI(path string) error {
	cfg := ini.Empty()

	game := cfg.Section("Game")
	game.Key("base_url").SetValue(s.Game.BaseURL)
	game.Key("http_timeout").SetValue(s.Game.HTTPTimeout.String())
	game.Key("max_attempts").SetValue(fmt.Sprint(s.Game.MaxAttempts))

	sched := cfg.Section("Schedule")
	sched.Key("authorize_every").SetValue(s.Schedule.AuthorizeEvery.String())
	sched.Key("authorize_retry").SetValue(s.Schedule.AuthorizeRetry.String())
	sched.Key("daily_bonus_every").SetValue(s.Schedule.DailyBonusEvery.String())
	sched.Key("promo_every").SetValue(s.Schedule.PromoEvery.String())
	sched.Key("upgrade_every").SetValue(s.Schedule.UpgradeEvery.String())
	sched.Key("channels_every").SetValue(s.Schedule.ChannelsEvery.String())
	sched.Key("workers").SetValue(fmt.Sprint(s.Schedule.Workers))

	mining := cfg.Section("Mining")
	mining.Key("count_min").SetValue(fmt.Sprint(s.Mining.CountMin))
	mining.Key("count_max").SetValue(fmt.Sprint(s.Mining.CountMax))
	mining.Key("energy_regen_per_second").SetValue(fmt.Sprint(s.Mining.RegenPerSec))
	mining.Key("fallback_delay").SetValue(s.Mining.FallbackDelay.String())

	upgrade := cfg.Section("Upgrade")
	upgrade.Key("ratio_ceiling").SetValue(s.Upgrade.RatioCeiling.String())
	upgrade.Key("max_purchases_per_tick").SetValue(fmt.Sprint(s.Upgrade.MaxPurchasesPerTick))

	login := cfg.Section("Login")
	login.Key("max_attempts").SetValue(fmt.Sprint(s.Login.MaxAttempts))
	login.Key("wait").SetValue(s.Login.Wait.String())
	login.Key("poll_interval").SetValue(s.Login.PollInterval.String())
	login.Key("retry_pause").SetValue(s.Login.RetryPause.String())

	server := cfg.Section("Server")
	server.Key("enabled").SetValue(fmt.Sprint(s.Server.Enabled))
	server.Key("addr").SetValue(s.Server.Addr)

	cfg.Section("Database").Key("path").SetValue(s.Database.Path)

	logging := cfg.Section("Logging")
	logging.Key("level").SetValue(s.Logging.Level)
	logging.Key("dir").SetValue(s.Logging.Dir)

	metrics := cfg.Section("Metrics")
	metrics.Key("enabled").SetValue(fmt.Sprint(s.Metrics.Enabled))
	metrics.Key("path").SetValue(s.Metrics.Path)

	return cfg.SaveTo(path)
}

var errNegativeCeiling = errors.New("ratio ceiling must not be negative")
