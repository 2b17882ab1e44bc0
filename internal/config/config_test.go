package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func TestLoadSimulatorDefaults(t *testing.T) {
    t.Setenv("CENTRAL_API_URL", "http://central:8000")
    t.Setenv("SIM_SPOT_FILTER_FLOOR", "0")
    t.Setenv("SIM_POLL_INTERVAL", "250ms")
    t.Setenv("SIM_AMBIENT", "off")

    cfg := LoadSimulator()
    require.Equal(t, "http://central:8000", cfg.CentralURL)
    require.Equal(t, "res_exchange", cfg.Exchange)
    require.NotNil(t, cfg.FloorFilter)
    require.Equal(t, 0, *cfg.FloorFilter)
    require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
    require.Equal(t, 50*time.Second, cfg.LeadTime)
    require.False(t, cfg.Ambient)
    require.Equal(t, 10*time.Second, cfg.ArriveMin)
    require.Equal(t, 40*time.Second, cfg.ArriveMax)
    require.Equal(t, uint64(5), cfg.ReconnectTries)
}

func TestRateLimitConfigClamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")
    t.Setenv("RATE_LIMIT_KEY_STRATEGY", "IP")

    cfg := LoadRateLimitConfig()
    require.Equal(t, 1, cfg.Capacity)
    require.Equal(t, 10*time.Second, cfg.TTL)
    require.Equal(t, "ip", cfg.KeyStrategy)
    require.Equal(t, []string{"simulator"}, cfg.ExemptRoles)
}

func TestRateLimitDefaultsCoverSimulatorReports(t *testing.T) {
    t.Setenv("CENTRAL_API_URL", "http://central:8000")
    rl := LoadRateLimitConfig()
    sim := LoadSimulator()
    require.GreaterOrEqual(t, float64(rl.RefillTokens)/rl.RefillInterval.Seconds(), sim.StatusRPS)

    t.Setenv("RATE_LIMIT_EXEMPT_ROLES", " simulator, admin ,")
    require.Equal(t, []string{"simulator", "admin"}, LoadRateLimitConfig().ExemptRoles)
    t.Setenv("RATE_LIMIT_EXEMPT_ROLES", "")
    require.Empty(t, LoadRateLimitConfig().ExemptRoles)
}

func TestEnvHelpers(t *testing.T) {
    t.Setenv("X_BOOL", "yes")
    t.Setenv("X_BAD_INT", "many")
    require.True(t, envBool("X_BOOL", false))
    require.Equal(t, 7, envInt("X_BAD_INT", 7))
    require.Nil(t, envIntPtr("X_BAD_INT"))
    require.Equal(t, 1.5, envFloat("X_UNSET_FLOAT", 1.5))
}
