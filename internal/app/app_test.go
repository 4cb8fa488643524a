package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/pkg/distlock"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "waitlist.db")
	return cfg
}

func TestNew_SQLiteDefaults(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.SESConsumer())
	assert.False(t, a.Links.Signed())

	res, err := a.Signups.Submit(context.Background(), signup.Input{Email: "boot@example.com"})
	require.NoError(t, err)
	assert.True(t, res.WelcomeEmailSent)

	deps := a.APIDeps()
	assert.NotNil(t, deps.Health)
	assert.NotNil(t, deps.Pages)
}

func TestNew_UsesRedisForLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	res, err := a.WelcomeBackfill().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)

	lock := distlock.NewLock(a.Redis, nil, "probe", time.Minute)
	_, isRedis := lock.(*distlock.RedisLock)
	assert.True(t, isRedis)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mongo"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_PostgresRequiresURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "postgres"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, isPermanent(signup.ErrNotFound))
	assert.True(t, isPermanent(fmt.Errorf("wrap: %w", signup.ErrInvalidField)))
	assert.False(t, isPermanent(errors.New("connection reset")))
}
