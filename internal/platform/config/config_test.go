package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(newViper())
	require.NoError(t, err)

	assert.Equal(t, int64(1000), cfg.Pricing.BasePricePerDayCents)
	assert.Equal(t, 30, cfg.Pricing.StandardTermDays)
	assert.Equal(t, int64(5000), cfg.Pricing.SubscriptionFeeCents)
	assert.Equal(t, 3, cfg.Entitlement.Allowance)
	assert.Equal(t, 30*24*time.Hour, cfg.Entitlement.WindowLength)
	assert.Equal(t, int64(500), cfg.Fines.DailyRateCents)
	assert.Equal(t, "@every 5m", cfg.Jobs.OverdueSchedule)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GAMERENT_PRICING_BASE_PRICE_PER_DAY_CENTS", "1500")
	t.Setenv("GAMERENT_ENTITLEMENT_ALLOWANCE", "5")
	t.Setenv("GAMERENT_SERVER_PORT", "9090")
	t.Setenv("GAMERENT_FINES_RENTAL_TERM", "336h")

	cfg, err := load(newViper())
	require.NoError(t, err)
	assert.Equal(t, int64(1500), cfg.Pricing.BasePricePerDayCents)
	assert.Equal(t, 5, cfg.Entitlement.Allowance)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 14*24*time.Hour, cfg.Fines.RentalTerm)
}

func TestLoadDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x@db/y")
	cfg, err := load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "postgres://x@db/y", cfg.Database.URL)

	t.Setenv("GAMERENT_DATABASE_URL", "postgres://z@db/w")
	cfg, err = load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "postgres://z@db/w", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"negative base price", func(c *Config) { c.Pricing.BasePricePerDayCents = -1 }},
		{"zero term", func(c *Config) { c.Pricing.StandardTermDays = 0 }},
		{"zero subscription fee", func(c *Config) { c.Pricing.SubscriptionFeeCents = 0 }},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "abc" }},
		{"no window", func(c *Config) { c.Entitlement.WindowLength = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(newViper())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
