// Package cli provides the geori command-line interface.
package cli

import (
	"context"

	"github.com/koustreak/geori/internal/config"
	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/database/postgres"
	"github.com/koustreak/geori/internal/database/sqldb"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/filestore"
	"github.com/koustreak/geori/internal/filestore/minio"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/postgis"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// Opener opens the database handle a command runs against.
type Opener func(ctx context.Context, cfg *database.Config) (database.Handle, error)

// StoreOpener opens the object store CSV inputs are read from.
type StoreOpener func(ctx context.Context, cfg *filestore.Config) (filestore.Store, error)

type app struct {
	cfgFile  string
	dsn      string
	logLevel string

	cfg *config.Config
	log *logger.Logger

	open      Opener
	openStore StoreOpener
}

// NewRootCmd creates the root command with the real database and object
// store drivers.
func NewRootCmd() *cobra.Command {
	return newRootCmd(OpenHandle, openMinIO)
}

func newRootCmd(open Opener, openStore StoreOpener) *cobra.Command {
	a := &app{open: open, openStore: openStore}

	root := &cobra.Command{
		Use:   "geori",
		Short: "Move rows between CSV files and PostGIS tables",
		Long: `geori loads CSV rows into PostGIS tables with batched multi-row INSERTs
and reads tables back out with geometries as WKT, optionally reprojected.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.FileName+")")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "PostgreSQL connection string (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.describeCmd(),
		a.loadCmd(),
		a.dumpCmd(),
		a.truncateCmd(),
		a.serveCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.dsn != "" {
		cfg.Database.DSN = a.dsn
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	cfg.Log.Output = cmd.ErrOrStderr()

	a.cfg = cfg
	a.log = logger.New(&cfg.Log)
	logger.SetGlobal(a.log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(a.log.WithContext(ctx))
	return nil
}

// connect opens the configured handle and wraps it in a postgis.Database.
// The returned function closes the handle.
func (a *app) connect(ctx context.Context) (*postgis.Database, func(), error) {
	h, err := a.open(ctx, &a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := h.Close(context.WithoutCancel(ctx)); err != nil {
			a.log.With().Err(err).Logger().Warn("failed to close database handle")
		}
	}
	return postgis.NewDatabase(h, a.cfg.Database.Schema), closeFn, nil
}

// OpenHandle opens a handle with the implementation selected by cfg.Driver.
func OpenHandle(ctx context.Context, cfg *database.Config) (database.Handle, error) {
	switch cfg.Driver {
	case database.DriverPostgres, "":
		return postgres.Connect(ctx, cfg)
	case database.DriverDatabaseSQL:
		return sqldb.Open(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown database driver %q", cfg.Driver)
	}
}

func openMinIO(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	switch cfg.Provider {
	case filestore.ProviderMinIO, "":
		return minio.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown store provider %q", cfg.Provider)
	}
}
