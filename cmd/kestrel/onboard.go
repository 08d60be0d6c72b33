package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/config"
	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/identity"
	"github.com/kestrelmon/kestrel/internal/onboard"
	"github.com/kestrelmon/kestrel/internal/provider/netprobe"
	"github.com/kestrelmon/kestrel/internal/provider/sqldb"
	"github.com/kestrelmon/kestrel/internal/secrets"
)

var onboardParams onboard.Params

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Provision monitoring credentials and validate them",
	Long:  "onboard writes the database credential bundle and the log sink secret into the monitor's secret store, then proves the setup by resolving the secrets back and connecting to the monitored database.",
	Run: func(cmd *cobra.Command, args []string) {
		runOnboard()
	},
}

func init() {
	f := onboardCmd.Flags()
	f.StringVar(&onboardParams.Kind, "kind", sqldb.Kind, "provider kind to onboard")
	f.StringVar(&onboardParams.Driver, "driver", "mssql", "database driver (mysql, postgres, mssql)")
	f.StringVar(&onboardParams.Host, "host", "", "database host")
	f.StringVar(&onboardParams.Port, "port", "", "database port (driver default when empty)")
	f.StringVar(&onboardParams.Database, "database", "", "database name")
	f.StringVar(&onboardParams.Username, "username", "", "database user")
	f.StringVar(&onboardParams.Password, "password", "", "database password (mutually exclusive with --password-ref)")
	f.StringVar(&onboardParams.PasswordRef, "password-ref", "", "secret URL referencing the password in a secondary store")
	f.StringVar(&onboardParams.PasswordKeyHolderID, "password-key-holder", "", "access identity for the secondary store")
	f.StringVar(&onboardParams.WorkspaceID, "workspace-id", "", "log ingestion workspace id")
	f.StringVar(&onboardParams.SharedKey, "shared-key", "", "log ingestion shared key")
	f.BoolVar(&onboardParams.AnalyticsEnabled, "analytics", false, "enable the secondary analytics sink")

	for _, name := range []string{"host", "database", "username", "workspace-id", "shared-key"} {
		_ = onboardCmd.MarkFlagRequired(name)
	}
}

func runOnboard() {
	v, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitUsage)
	}

	logger, err := config.NewLogger(v, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitUsage)
	}

	exitWith(logger, onboardFlow(v, logger))
}

// onboardFlow runs the provisioning flow and returns the terminal error,
// if any.
func onboardFlow(v *viper.Viper, logger *zap.Logger) error {
	if onboardParams.Password == "" && onboardParams.PasswordRef == "" {
		return fmt.Errorf("either --password or --password-ref is required")
	}
	onboardParams.CredentialPrefix = v.GetString("credentials.prefix")
	onboardParams.SinkSecretName = v.GetString("credentials.sink_secret")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metaSvc := identity.NewHTTPMetadataService(
		v.GetString("metadata.endpoint"),
		v.GetDuration("metadata.timeout"),
		logger.Named("identity"),
	)
	id, err := identity.Resolve(ctx, metaSvc, "onboard")
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("monitor_id", id.MonitorID))

	opener := secrets.HTTPOpener(v.GetDuration("secrets.timeout"), logger.Named("secrets"))
	storeHost := fmt.Sprintf(v.GetString("secrets.host_pattern"), id.MonitorID)
	store, err := opener(storeHost, id.AccessIdentity())
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrStoreUnavailable, err)
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrStoreUnavailable, err)
	}
	if !exists {
		return fmt.Errorf("%w: store %q does not exist", secrets.ErrStoreUnavailable, storeHost)
	}

	registry := content.NewRegistry(logger.Named("content"))
	registry.Register(sqldb.Kind, sqldb.New)
	registry.Register(netprobe.Kind, netprobe.New)

	resolver := secrets.NewResolver(opener, onboardParams.SinkSecretName, logger.Named("secrets"))
	flow := onboard.NewFlow(store, resolver, registry, logger.Named("onboard"))

	if err := flow.Run(ctx, onboardParams); err != nil {
		return err
	}
	logger.Info("onboarding complete")
	return nil
}
