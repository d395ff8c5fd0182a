package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/backup"
	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive every stored run to a backup file",
		Long: `Archive every stored run (config snapshot, agents, edges and steps) to a
single compressed, checksummed file.

Default location: ~/.tradernet/backups/tradernet-backup-<timestamp>.tnb
Old archives in the same directory are pruned by backup.retention
(default: keep the last 10).

Examples:
  tradernet backup                        # Backup to the default location
  tradernet backup --output runs.tnb      # Backup to a specific file
  tradernet backup list                   # List archives
  tradernet backup verify <file>          # Verify an archive's checksum`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			policy, err := buildRetentionPolicy(e.cfg.Backup.Retention)
			if err != nil {
				return err
			}
			if outputPath == "" {
				dir, err := backupDir(e.cfg)
				if err != nil {
					return err
				}
				outputPath = backup.GeneratePath(dir)
			} else if err := checkPath(e.cfg, outputPath); err != nil {
				return fmt.Errorf("backup path rejected: %w", err)
			}

			rs, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer rs.Close()

			header, err := backup.Backup(cmd.Context(), rs, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			deleted, err := backup.ApplyRetention(filepath.Dir(outputPath), policy)
			if err != nil {
				e.logger.Warn("failed to apply retention", "error", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":       outputPath,
					"run_count":  header.RunCount,
					"step_count": header.StepCount,
					"checksum":   header.Checksum,
					"pruned":     len(deleted),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d runs, %d steps\n", header.RunCount, header.StepCount)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old backups\n", len(deleted))
			}
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in ~/.tradernet/backups/)")
	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup archives, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			dir, err := backupDir(e.cfg)
			if err != nil {
				return err
			}
			backups, err := backup.List(dir)
			if err != nil {
				return err
			}

			if jsonOut {
				if backups == nil {
					backups = []backup.Info{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"backups": backups, "count": len(backups)})
			}
			if len(backups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", dir)
				return nil
			}
			for _, b := range backups {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %4d runs  %8d bytes\n",
					b.CreatedAt.Format("2006-01-02 15:04:05"), filepath.Base(b.Path), b.Runs, b.Size)
			}
			return nil
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a backup archive's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			err := backup.VerifyChecksum(args[0])
			if jsonOut {
				out := map[string]any{"file": args[0], "valid": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
					return werr
				}
				return err
			}
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checksum OK: %s\n", args[0])
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore runs from a backup archive",
		Long: `Restore runs from a backup archive into the configured store.

Modes:
  merge    keep existing runs and skip archived runs whose id already exists
  replace  delete every stored run first`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeFlag, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeFlag)
			if err != nil {
				return err
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := checkPath(e.cfg, args[0]); err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			rs, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer rs.Close()

			result, err := backup.Restore(cmd.Context(), rs, args[0], mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d runs (%d skipped", result.RunsRestored, result.RunsSkipped)
			if result.RunsDeleted > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", %d deleted", result.RunsDeleted)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ")")
			return nil
		},
	}
	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")
	return cmd
}

// backupDir is backup.dir from config, or ~/.tradernet/backups.
func backupDir(cfg *config.Config) (string, error) {
	if cfg.Backup.Dir != "" {
		return cfg.Backup.Dir, nil
	}
	dir, err := backup.DefaultDir()
	if err != nil {
		return "", fmt.Errorf("failed to get backup directory: %w", err)
	}
	return dir, nil
}

// checkPath confines CLI file arguments to the working directory and the
// backup directory.
func checkPath(cfg *config.Config, path string) error {
	dir, err := backupDir(cfg)
	if err != nil {
		return err
	}
	allowed, err := pathutil.AllowedOutputDirs(dir)
	if err != nil {
		return err
	}
	return pathutil.ValidatePath(path, allowed)
}

// buildRetentionPolicy turns backup.retention into a policy. With no
// limits configured it keeps the last 10 archives.
func buildRetentionPolicy(cfg config.RetentionConfig) (backup.RetentionPolicy, error) {
	var policies backup.AnyPolicy

	if cfg.MaxCount > 0 {
		policies = append(policies, &backup.CountPolicy{MaxCount: cfg.MaxCount})
	}
	if cfg.MaxAge != "" {
		d, err := backup.ParseDuration(cfg.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("backup.retention.max_age: %w", err)
		}
		policies = append(policies, &backup.AgePolicy{MaxAge: d})
	}
	if cfg.MaxTotalSize != "" {
		s, err := backup.ParseSize(cfg.MaxTotalSize)
		if err != nil {
			return nil, fmt.Errorf("backup.retention.max_total_size: %w", err)
		}
		policies = append(policies, &backup.SizePolicy{MaxTotalBytes: s})
	}

	switch len(policies) {
	case 0:
		return &backup.CountPolicy{MaxCount: 10}, nil
	case 1:
		return policies[0], nil
	}
	return policies, nil
}
