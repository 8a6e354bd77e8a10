// Bot configuration: guild, role and channel ids plus moderation tunables.
//
// A Config is loaded once at startup and passed by value to the components which need it. Nothing mutates it after Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	GuildID      snowflake.ID `yaml:"guild_id"`
	Prefix       string       `yaml:"prefix"`
	Roles        Roles        `yaml:"roles"`
	Channels     Channels     `yaml:"channels"`
	Moderation   Moderation   `yaml:"moderation"`
	Verification Verification `yaml:"verification"`
}

type Roles struct {
	Muted         snowflake.ID   `yaml:"muted"`
	Verified      snowflake.ID   `yaml:"verified"`
	Announcements snowflake.ID   `yaml:"announcements"`
	Moderators    []snowflake.ID `yaml:"moderators"`
	Admins        []snowflake.ID `yaml:"admins"`
	Owners        []snowflake.ID `yaml:"owners"`
}

type Channels struct {
	ModLog        snowflake.ID `yaml:"mod_log"`
	UserLog       snowflake.ID `yaml:"user_log"`
	ModAlerts     snowflake.ID `yaml:"mod_alerts"`
	Verification  snowflake.ID `yaml:"verification"`
	BotCommands   snowflake.ID `yaml:"bot_commands"`
	Announcements snowflake.ID `yaml:"announcements"`
	// channels where command replies may include a member's infraction history
	Staff []snowflake.ID `yaml:"staff"`
}

type Moderation struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	SuppressionTTL    time.Duration `yaml:"suppression_ttl"`
	// a rejoining member whose mute has less than this remaining is unmuted instead
	RejoinThreshold time.Duration `yaml:"rejoin_threshold"`
	PlatformTimeout time.Duration `yaml:"platform_timeout"`
	PlatformRetries uint          `yaml:"platform_retries"`
	// linked from infraction notices
	RulesURL       string `yaml:"rules_url"`
	AppealsContact string `yaml:"appeals_contact"`
}

type Verification struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	// the reminder is reposted once the previous one is older than this
	ReminderAge time.Duration `yaml:"reminder_age"`
}

func Default() Config {
	return Config{
		Prefix: "!",
		Moderation: Moderation{
			ReconcileInterval: 10 * time.Minute,
			SuppressionTTL:    30 * time.Second,
			RejoinThreshold:   60 * time.Second,
			PlatformTimeout:   10 * time.Second,
			PlatformRetries:   3,
		},
		Verification: Verification{
			PingInterval: 12 * time.Hour,
			ReminderAge:  7 * 24 * time.Hour,
		},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.GuildID == 0 {
		errs = append(errs, errors.New("guild_id is required"))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if c.Roles.Muted == 0 {
		errs = append(errs, errors.New("roles.muted is required"))
	}
	if len(c.StaffRoles()) == 0 {
		errs = append(errs, errors.New("at least one moderator, admin or owner role is required"))
	}
	if c.Channels.ModLog == 0 {
		errs = append(errs, errors.New("channels.mod_log is required"))
	}
	if c.Moderation.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("moderation.reconcile_interval must be positive"))
	}
	if c.Moderation.SuppressionTTL <= 0 {
		errs = append(errs, errors.New("moderation.suppression_ttl must be positive"))
	}
	if c.Moderation.PlatformTimeout <= 0 {
		errs = append(errs, errors.New("moderation.platform_timeout must be positive"))
	}
	if c.Moderation.RejoinThreshold < 0 {
		errs = append(errs, errors.New("moderation.rejoin_threshold must not be negative"))
	}
	if c.Verification.PingInterval <= 0 {
		errs = append(errs, errors.New("verification.ping_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// StaffRoles is every role allowed to run moderation commands.
func (c Config) StaffRoles() []snowflake.ID {
	return slices.Concat(c.Roles.Moderators, c.Roles.Admins, c.Roles.Owners)
}

// AdminRoles is the subset of staff allowed to run admin commands.
func (c Config) AdminRoles() []snowflake.ID {
	return slices.Concat(c.Roles.Admins, c.Roles.Owners)
}

func (c Config) IsStaffChannel(channel snowflake.ID) bool {
	return slices.Contains(c.Channels.Staff, channel)
}
