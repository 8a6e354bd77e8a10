package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleYAML = `
guild_id: 267624335836053506
prefix: "!"
roles:
  muted: 277914926603829249
  verified: 352427296948486144
  announcements: 463658397560995840
  moderators: [267629731250176001]
  admins: [267628507062992896]
  owners: [267627879762755584]
channels:
  mod_log: 282638479504965634
  user_log: 528976905546760203
  mod_alerts: 473092532147060736
  verification: 352442727016889877
  bot_commands: 267659945086812160
  staff: [365960823622991872]
moderation:
  suppression_ttl: 45s
  rejoin_threshold: 2m
`

func TestParse(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse([]byte(exampleYAML))
	require.NoError(t, err)

	assert.Equal(snowflake.ID(267624335836053506), cfg.GuildID)
	assert.Equal(snowflake.ID(277914926603829249), cfg.Roles.Muted)
	assert.Equal(45*time.Second, cfg.Moderation.SuppressionTTL)
	assert.Equal(2*time.Minute, cfg.Moderation.RejoinThreshold)

	// untouched keys keep defaults
	assert.Equal(10*time.Minute, cfg.Moderation.ReconcileInterval)
	assert.Equal(uint(3), cfg.Moderation.PlatformRetries)
	assert.Equal(12*time.Hour, cfg.Verification.PingInterval)

	assert.Len(cfg.StaffRoles(), 3)
	assert.Len(cfg.AdminRoles(), 2)
	assert.True(cfg.IsStaffChannel(365960823622991872))
	assert.False(cfg.IsStaffChannel(cfg.Channels.BotCommands))
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte("prefix: '?'"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guild_id is required")
	assert.Contains(t, err.Error(), "roles.muted is required")

	cfg, err := Parse([]byte(exampleYAML))
	require.NoError(t, err)
	cfg.Moderation.ReconcileInterval = 0
	assert.ErrorContains(t, cfg.Validate(), "reconcile_interval")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "!", cfg.Prefix)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
