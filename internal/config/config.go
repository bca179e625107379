// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Sheets struct {
	Enabled         bool
	SpreadsheetID   string
	CredentialsPath string
	// WorkbookPath switches persistence to a local xlsx file when the
	// Sheets API is disabled.
	WorkbookPath    string
	FlushInterval   time.Duration
	RefreshInterval time.Duration
}

type RSGE struct {
	Enabled          bool
	Endpoint         string
	Username         string
	Password         string
	Timeout          time.Duration
	ChunkDays        int
	ChunkParallelism int
	Namespace        string
	DateLayout       string
}

type Sync struct {
	MaxRetries     int
	RetryDelays    []time.Duration
	FullSyncMonths int
	SourceUser     string
	DailyHour      int
	Timezone       string
	StartupDelay   time.Duration
}

type Config struct {
	Sheets       Sheets
	RSGE         RSGE
	Sync         Sync
	WeekdayNames []string
	LogLevel     string
}

// Load reads .env if present, then the process environment. Every key has
// a workable default so the binary starts in offline mode with no setup.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	v := viper.New()
	v.SetEnvPrefix("ORDERDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("sheets.enabled", false)
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.credentials_path", "credentials.json")
	v.SetDefault("sheets.workbook_path", "orderdesk.xlsx")
	v.SetDefault("sheets.flush_interval", "5s")
	v.SetDefault("sheets.refresh_interval", "5m")
	v.SetDefault("rsge.enabled", false)
	v.SetDefault("rsge.endpoint", "https://services.rs.ge/WayBillService/WayBillService.asmx")
	v.SetDefault("rsge.username", "")
	v.SetDefault("rsge.password", "")
	v.SetDefault("rsge.timeout", "120s")
	v.SetDefault("rsge.chunk_days", 3)
	v.SetDefault("rsge.chunk_parallelism", 3)
	v.SetDefault("rsge.namespace", "http://tempuri.org/")
	v.SetDefault("rsge.date_layout", "2006-01-02T15:04:05")
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_delays", "2s,4s,8s")
	v.SetDefault("sync.full_sync_months", 2)
	v.SetDefault("sync.source_user", "rsge_sync")
	v.SetDefault("sync.daily_hour", 8)
	v.SetDefault("sync.timezone", "Asia/Tbilisi")
	v.SetDefault("sync.startup_delay", "15s")
	v.SetDefault("weekday_names", "")

	cfg := Config{
		Sheets: Sheets{
			Enabled:         v.GetBool("sheets.enabled"),
			SpreadsheetID:   v.GetString("sheets.spreadsheet_id"),
			CredentialsPath: v.GetString("sheets.credentials_path"),
			WorkbookPath:    v.GetString("sheets.workbook_path"),
			FlushInterval:   v.GetDuration("sheets.flush_interval"),
			RefreshInterval: v.GetDuration("sheets.refresh_interval"),
		},
		RSGE: RSGE{
			Enabled:          v.GetBool("rsge.enabled"),
			Endpoint:         v.GetString("rsge.endpoint"),
			Username:         v.GetString("rsge.username"),
			Password:         v.GetString("rsge.password"),
			Timeout:          v.GetDuration("rsge.timeout"),
			ChunkDays:        v.GetInt("rsge.chunk_days"),
			ChunkParallelism: v.GetInt("rsge.chunk_parallelism"),
			Namespace:        v.GetString("rsge.namespace"),
			DateLayout:       v.GetString("rsge.date_layout"),
		},
		Sync: Sync{
			MaxRetries:     v.GetInt("sync.max_retries"),
			RetryDelays:    parseDelays(v.GetString("sync.retry_delays")),
			FullSyncMonths: v.GetInt("sync.full_sync_months"),
			SourceUser:     v.GetString("sync.source_user"),
			DailyHour:      v.GetInt("sync.daily_hour"),
			Timezone:       v.GetString("sync.timezone"),
			StartupDelay:   v.GetDuration("sync.startup_delay"),
		},
		WeekdayNames: parseList(v.GetString("weekday_names")),
		LogLevel:     v.GetString("log.level"),
	}
	if cfg.Sheets.Enabled && cfg.Sheets.SpreadsheetID == "" {
		log.Warn().Msg("sheets enabled but ORDERDESK_SHEETS_SPREADSHEET_ID is empty")
	}
	if cfg.RSGE.Enabled && (cfg.RSGE.Username == "" || cfg.RSGE.Password == "") {
		log.Warn().Msg("rsge enabled but credentials are empty")
	}
	return cfg
}

func parseDelays(s string) []time.Duration {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			log.Warn().Str("value", part).Msg("skipping unparsable retry delay")
			continue
		}
		out = append(out, d)
	}
	return out
}

func parseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
