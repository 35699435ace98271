package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with QWATCH_* variables found through lookup.
func ApplyEnv(cfg *File, lookup func(string) (string, bool)) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid duration %q", key, v))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	d := &cfg.Dashboard
	str("QWATCH_API_URL", &d.APIURL)
	flag("QWATCH_DISCOVER", &d.Discover)
	str("QWATCH_QUEUE_FILTER", &d.QueueFilter)
	num("QWATCH_RETRY_ATTEMPTS", &d.RetryAttempts)
	dur("QWATCH_RETRY_DELAY", &d.RetryDelay)
	dur("QWATCH_REQUEST_TIMEOUT", &d.RequestTimeout)
	dur("QWATCH_STATS_INTERVAL", &d.StatsInterval)
	dur("QWATCH_HISTORY_INTERVAL", &d.HistoryInterval)
	str("QWATCH_MIN_SERVER_VERSION", &d.MinServerVersion)
	str("QWATCH_TIME_ZONE", &d.TimeZone)
	str("QWATCH_METRICS_ADDR", &d.MetricsAddr)
	str("QWATCH_API_TOKEN", &d.APIToken)

	s := &cfg.Server
	str("QWATCH_SERVER_ADDR", &s.Addr)
	str("QWATCH_GRPC_ADDR", &s.GRPCAddr)
	str("QWATCH_DB_PATH", &s.DBPath)
	str("QWATCH_REDIS_URL", &s.RedisURL)
	dur("QWATCH_HISTORY_SAMPLE_INTERVAL", &s.HistorySampleInterval)
	num("QWATCH_HISTORY_LIMIT", &s.HistoryLimit)
	num("QWATCH_VOLUME_HOURS", &s.VolumeHours)
	flag("QWATCH_MDNS_ENABLE", &s.MDNS)
	str("QWATCH_MDNS_INSTANCE", &s.MDNSInstance)
	flag("QWATCH_SIMULATE", &s.Simulate)
	str("QWATCH_API_TOKEN", &s.APIToken)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// parseDuration accepts Go durations and bare integers as milliseconds.
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
