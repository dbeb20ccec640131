package container

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/INLOpen/dictbase/cache"
	"github.com/INLOpen/dictbase/config"
	"github.com/INLOpen/dictbase/core"
)

// Process-wide block cache counters, published once under /debug/vars.
var (
	cacheMetricsOnce sync.Once
	cacheHits        *expvar.Int
	cacheMisses      *expvar.Int
)

func blockCacheMetrics() (hits, misses *expvar.Int) {
	cacheMetricsOnce.Do(func() {
		cacheHits = expvar.NewInt("container_block_cache_hits_total")
		cacheMisses = expvar.NewInt("container_block_cache_misses_total")
	})
	return cacheHits, cacheMisses
}

// BuilderOptionsFromConfig maps a loaded configuration to builder
// options. The collation options are recorded as header attributes so a
// reader reconstructs the same ordering without configuration.
func BuilderOptionsFromConfig(cfg *config.Config, secret []byte) (BuilderOptions, error) {
	comp, err := core.ParseCompressionType(cfg.Builder.Compression)
	if err != nil {
		return BuilderOptions{}, fmt.Errorf("builder.compression: %w", err)
	}
	enc, err := core.ParseEncryptionType(cfg.Builder.Encryption)
	if err != nil {
		return BuilderOptions{}, fmt.Errorf("builder.encryption: %w", err)
	}

	attrs := make(map[string]string)
	if cfg.Builder.Collation.Locale != "" {
		attrs[core.AttrLocale] = cfg.Builder.Collation.Locale
	}
	if cfg.Builder.Collation.CaseSensitive {
		attrs[core.AttrCaseSensitive] = "true"
	}
	if cfg.Builder.Collation.StripKey {
		attrs[core.AttrStripKey] = "true"
	}

	return BuilderOptions{
		Compression:     comp,
		Encryption:      enc,
		Secret:          secret,
		KeyBlockSize:    cfg.Builder.KeyBlockSizeBytes,
		RecordBlockSize: cfg.Builder.RecordBlockSizeBytes,
		Attributes:      attrs,
	}, nil
}

// ReaderOptionsFromConfig maps a loaded configuration to reader options,
// creating a block cache when the configured budget is positive.
func ReaderOptionsFromConfig(cfg *config.Config, secret []byte) ReaderOptions {
	opts := ReaderOptions{Secret: secret}
	if cfg.Cache.BlockCacheCapacityBytes > 0 {
		opts.Cache = cache.New(cfg.Cache.BlockCacheCapacityBytes)
		opts.Cache.SetMetrics(blockCacheMetrics())
	}
	return opts
}
