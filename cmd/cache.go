package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/codes"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the build cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show cache statistics",
	RunE:         runCacheStats,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Forget every cached step and remove downloads and extracted sources",
	RunE:         runCacheClear,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

var cacheScopes = []string{
	cache.ScopeDownload,
	cache.ScopeExtracted,
	cache.ScopeToolchain,
	cache.ScopeBuildSimple,
	cache.ScopeBuildAutotools,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

func openCache(cmd *cobra.Command) (*cache.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	db, err := cache.Open(cfg.StorageDir)
	if err != nil {
		return nil, codes.Wrap(codes.StageCache, "", err)
	}

	return db, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	db, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	count, size, err := db.Stats()
	if err != nil {
		return codes.Wrap(codes.StageCache, "", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Storage: %s\n", db.Root())
	fmt.Fprintf(out, "Entries: %d\n", count)

	for _, scope := range cacheScopes {
		keys, err := db.Keys(scope)
		if err != nil {
			return codes.Wrap(codes.StageCache, "", err)
		}

		fmt.Fprintf(out, "  %-16s %d\n", scope, len(keys))
	}

	downloaded, err := downloadedBytes(db)
	if err != nil {
		return codes.Wrap(codes.StageCache, "", err)
	}

	fmt.Fprintf(out, "Downloaded: %s\n", humanize.Bytes(uint64(downloaded)))
	fmt.Fprintf(out, "Sources on disk: %s\n", humanize.Bytes(uint64(size)))

	return nil
}

// downloadedBytes sums the archive sizes recorded by the download scope
func downloadedBytes(db *cache.DB) (int64, error) {
	keys, err := db.Keys(cache.ScopeDownload)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, key := range keys {
		value, found, err := db.Get(key)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}

		_, size, err := cache.ParseSized(value)
		if err != nil {
			return 0, err
		}
		total += size
	}

	return total, nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	db, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Clear(); err != nil {
		return codes.Wrap(codes.StageCache, "", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", db.Root())
	return nil
}
