package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"retaincheck/internal/driver"
)

const cacheApp = "retaincheck"

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis result cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all cached analysis results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := driver.OpenDiskCache(cacheApp)
		if err != nil {
			return err
		}
		if err := c.DropAll(); err != nil {
			return fmt.Errorf("failed to clean %s: %w", c.Dir(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", c.Dir())
		return nil
	},
}

var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the cache directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := driver.OpenDiskCache(cacheApp)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.Dir())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheCleanCmd, cacheDirCmd)
}
