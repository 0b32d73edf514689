package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/jsherman999/parknow/internal/config"
	"github.com/jsherman999/parknow/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{Use: "parknowd", Short: "ParkNow daemon (simulation + API + live streams)", SilenceUsage: true}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(facilitiesCmd(&cfgPath))
	return root
}

func serveCmd(cfgPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Listen = listen
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv, err := NewServer(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := srv.Run(ctx); err != nil {
				logger.Error("server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides api.listen)")
	return cmd
}

func facilitiesCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "facilities",
		Short: "Print the configured facilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSLOTS\tFIRST SLOT\tINITIAL")
			for _, f := range cfg.Facilities {
				initial := f.Initial
				if initial == "" {
					initial = "random"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s1\t%s\n", f.ID, f.Name, f.Slots, f.SlotPrefix(), initial)
			}
			return tw.Flush()
		},
	}
}
