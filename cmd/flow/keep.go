package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognicore/flow/internal/customdict"
	"github.com/cognicore/flow/pkg/flow/config"
)

var keepCmd = &cobra.Command{
	Use:   "keep",
	Short: "Manage the shared keep-list of protected words (needs Redis)",
}

var keepAddCmd = &cobra.Command{
	Use:   "add word...",
	Short: "Protect words",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDict(cmd, func(ctx context.Context, cd *customdict.CustomDict) error {
			for _, w := range args {
				if err := cd.Add(ctx, w); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var keepRemoveCmd = &cobra.Command{
	Use:   "remove word...",
	Short: "Unprotect words",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDict(cmd, func(ctx context.Context, cd *customdict.CustomDict) error {
			for _, w := range args {
				if err := cd.Remove(ctx, w); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var keepListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show protected words",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDict(cmd, func(ctx context.Context, cd *customdict.CustomDict) error {
			words, err := cd.All(ctx)
			if err != nil {
				return err
			}
			for _, w := range words {
				fmt.Fprintln(cmd.OutOrStdout(), w)
			}
			return nil
		})
	},
}

func init() {
	keepCmd.AddCommand(keepAddCmd, keepRemoveCmd, keepListCmd)
	rootCmd.AddCommand(keepCmd)
}

func withDict(cmd *cobra.Command, fn func(context.Context, *customdict.CustomDict) error) error {
	addr := global.redisAddr
	if addr == "" {
		addr = os.Getenv("FLOW_REDIS_ADDR")
	}
	if addr == "" && global.configPath != "" {
		cfg, err := config.Load(global.configPath)
		if err != nil {
			return err
		}
		addr = cfg.Cache.RedisAddr
	}
	if addr == "" {
		return fmt.Errorf("no Redis address: use --redis, FLOW_REDIS_ADDR or cache.redis_addr")
	}

	rdb := openRedis(addr)
	defer rdb.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, customdict.New(rdb))
}
