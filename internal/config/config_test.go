package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.False(t, cfg.Sheets.Enabled)
	assert.Equal(t, "orderdesk.xlsx", cfg.Sheets.WorkbookPath)
	assert.Equal(t, 5*time.Second, cfg.Sheets.FlushInterval)
	assert.Equal(t, 5*time.Minute, cfg.Sheets.RefreshInterval)

	assert.False(t, cfg.RSGE.Enabled)
	assert.Equal(t, 3, cfg.RSGE.ChunkDays)
	assert.Equal(t, 3, cfg.RSGE.ChunkParallelism)
	assert.Equal(t, "http://tempuri.org/", cfg.RSGE.Namespace)

	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, cfg.Sync.RetryDelays)
	assert.Equal(t, 2, cfg.Sync.FullSyncMonths)
	assert.Equal(t, "rsge_sync", cfg.Sync.SourceUser)
	assert.Equal(t, 8, cfg.Sync.DailyHour)
	assert.Equal(t, "Asia/Tbilisi", cfg.Sync.Timezone)
	assert.Nil(t, cfg.WeekdayNames)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ORDERDESK_SYNC_MAX_RETRIES", "5")
	t.Setenv("ORDERDESK_SYNC_RETRY_DELAYS", "1s, bogus ,3s")
	t.Setenv("ORDERDESK_RSGE_CHUNK_DAYS", "7")
	t.Setenv("ORDERDESK_WEEKDAY_NAMES", "kvira,orshabati,samshabati,otkhshabati,khutshabati,paraskevi,shabati")

	cfg := Load()
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, cfg.Sync.RetryDelays,
		"unparsable entries are skipped")
	assert.Equal(t, 7, cfg.RSGE.ChunkDays)
	assert.Len(t, cfg.WeekdayNames, 7)
}
