package config

import (
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Feature names. Each maps to a FEATURE_* variable, see envKey.
const (
	FeatureBadges           = "engine.badges"
	FeatureAchievements     = "engine.achievements"
	FeatureLeaderboardCache = "leaderboard.cache"
	FeatureQueueConsumer    = "intake.queue_consumer"
	FeatureDistributedBus   = "events.distributed"
	FeatureCatalogReload    = "scheduler.catalog_reload"
)

// ErrFeatureNotFound is returned by Set for a name outside the table.
var ErrFeatureNotFound = errors.New("feature not found")

// defaultFeatures lists every known toggle with its default.
var defaultFeatures = map[string]bool{
	FeatureBadges:           true,
	FeatureAchievements:     true,
	FeatureLeaderboardCache: true,
	FeatureQueueConsumer:    true,
	FeatureDistributedBus:   false, // needs every worker on the same Redis
	FeatureCatalogReload:    true,
}

// FeatureFlags holds engine toggles. They are read once at startup and may be
// flipped at runtime.
type FeatureFlags struct {
	mu    sync.RWMutex
	state map[string]bool
}

// LoadFeatureFlags applies FEATURE_<NAME>=true|false overrides to the
// defaults. Unparseable values keep the default.
func LoadFeatureFlags() *FeatureFlags {
	return loadFeatureFlags(os.Getenv)
}

func loadFeatureFlags(getenv func(string) string) *FeatureFlags {
	ff := &FeatureFlags{state: make(map[string]bool, len(defaultFeatures))}
	for name, on := range defaultFeatures {
		if b, err := strconv.ParseBool(getenv(envKey(name))); err == nil {
			on = b
		}
		ff.state[name] = on
	}
	return ff
}

// envKey: "leaderboard.cache" -> "FEATURE_LEADERBOARD_CACHE".
func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled reports whether a feature is on. Unknown names are off.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.state[name]
}

// Set flips a known feature.
func (ff *FeatureFlags) Set(name string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.state[name]; !ok {
		return ErrFeatureNotFound
	}
	ff.state[name] = enabled
	return nil
}

// Enabled returns the names of the features that are on, sorted.
func (ff *FeatureFlags) Enabled() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	var out []string
	for name, on := range ff.state {
		if on {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
