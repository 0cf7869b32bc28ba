package util

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dReg/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetConfigFromEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("DREG_DRIVER", "memory")
	t.Setenv("DREG_HEARTBEAT_INTERVAL", "250ms")
	t.Setenv("DREG_CLIENT_ID", "42")
	t.Setenv("DREG_CLIENT_NAME", "worker")
	InitConfig()

	cmd := &cobra.Command{Use: "test"}
	SetupTableFlags(cmd)
	SetupClientFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--staleness-multiple=5"}))

	conf, err := LoadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, common.DriverMemory, conf.Driver)
	assert.Equal(t, 250*time.Millisecond, conf.HeartbeatInterval)
	assert.Equal(t, 5, conf.StalenessMultiple)
	assert.Equal(t, int64(42), conf.ClientID)
	assert.Equal(t, "worker", conf.ClientName)

	assert.Equal(t, 250*time.Millisecond, LockManagerConfig(conf).PollInterval)
	assert.Equal(t, 1250*time.Millisecond, LivenessConfig(conf).Threshold())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupTableFlags(cmd)
	SetupClientFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--jitter=2"}))

	_, err := LoadConfig(cmd)
	assert.Error(t, err)
}

func TestOpenTables(t *testing.T) {
	ctx := context.Background()

	conf := common.DefaultConfig()
	conf.Driver = common.DriverMemory
	tables, err := OpenTables(ctx, conf)
	require.NoError(t, err)
	assert.NotNil(t, tables.Locks)
	CloseTables(tables)

	conf = common.DefaultConfig()
	conf.DSN = t.TempDir() + "/dreg.db"
	tables, err = OpenTables(ctx, conf)
	require.NoError(t, err)
	defer CloseTables(tables)

	recs, err := tables.Heartbeats.SelectAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
