// Package migratecmder provides the migrate command for copying the
// write-ahead log between storage drivers.
package migratecmder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/spool/cmd/spool/walopen"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/config"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/migrate"
)

const migrateLongDesc string = `Copy the write-ahead log into a different storage driver.

The source is whatever the storage flags select, the same way every other
command resolves it. The destination is named by --to and --to-path and must
be empty: migration re-appends history in its original order and refuses to
interleave with entries that are already there.

A file log moving into sqlite gains transactional inserts; a sqlite log
moving back out becomes a flat file again. The source is never modified, so
a failed or interrupted migration can simply be rerun against a fresh
destination.`

const migrateShortDesc string = "Copy the write-ahead log into a different storage driver"

type migrateCommander struct {
	driver      string
	walPath     string
	sqlitePath  string
	postgresDSN string
	toDriver    string
	toTarget    string
	dryRun      bool
	debug       bool
	configDir   string
}

func NewMigrateCmd() *cobra.Command {
	cmder := &migrateCommander{}
	fs := config.NewFlagSet()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagDriver,
				config.FlagWAL,
				config.FlagSQLite,
				config.FlagPostgresDSN,
			})

			return cmder.run(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagWAL, &cmder.walPath)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)

	cmd.Flags().StringVar(&cmder.toDriver, "to", "", "destination driver (file, sqlite, or postgres)")
	cmd.Flags().StringVar(&cmder.toTarget, "to-path", "", "destination path or DSN (defaults per driver)")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "count what would be copied without writing")

	return cmd
}

func (c *migrateCommander) run(ctx context.Context, v *viper.Viper, out io.Writer) error {
	zlog := zap.NewNop()
	if c.debug {
		zlog = logger.NewLogger(true)
	}

	switch c.toDriver {
	case "":
		return errors.New("--to is required (file, sqlite, or postgres)")
	case config.DriverInMemory:
		return errors.New("the inmemory driver cannot be a migration destination")
	}

	src, srcTarget, err := walopen.Open(ctx, v, c.configDir, zlog)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, dstTarget, err := walopen.NewLog(ctx, c.toDriver, c.toTarget, c.configDir, zlog)
	if err != nil {
		return err
	}
	defer dst.Close()

	srcDriver := v.GetString("storage.driver")
	if srcDriver == "" {
		srcDriver = config.DriverFile
	}
	if srcDriver == c.toDriver && srcTarget == dstTarget {
		return fmt.Errorf("source and destination are the same log (%s)", srcTarget)
	}

	if c.dryRun {
		fmt.Fprintln(out, cliui.DimStyle.Render("Dry run mode: no changes will be written"))
	}

	m, err := migrate.New(src, dst, migrate.Options{DryRun: c.dryRun, Logger: zlog})
	if err != nil {
		return err
	}

	var result *migrate.Result
	err = cliui.Step(out, fmt.Sprintf("copying %s to %s", srcTarget, dstTarget), func() error {
		var runErr error
		result, runErr = m.Run(ctx)
		return runErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, result.Summary())

	return nil
}
