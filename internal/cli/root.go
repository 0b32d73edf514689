package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jsherman999/parknow/internal/client"
	"github.com/jsherman999/parknow/internal/parking"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServer = "http://127.0.0.1:8000"

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARKNOW")
	_ = v.BindEnv("server")
	v.SetDefault("server", defaultServer)

	root := &cobra.Command{Use: "parknow", Short: "ParkNow client", SilenceUsage: true}
	root.PersistentFlags().String("server", defaultServer, "parknowd base URL (env PARKNOW_SERVER)")
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))

	newClient := func() *client.Client { return client.New(v.GetString("server")) }

	root.AddCommand(locationsCmd(newClient))
	root.AddCommand(slotsCmd(newClient))
	root.AddCommand(watchCmd(newClient))
	root.AddCommand(exportCmd(newClient))
	return root
}

func locationsCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List facilities with live occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			locs, err := newClient().Locations(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(locs))
			for id := range locs {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTOTAL\tAVAILABLE\tOCCUPIED")
			for _, id := range ids {
				s := locs[id]
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", id, s.Name, s.TotalSlots, s.Available, s.Occupied)
			}
			return tw.Flush()
		},
	}
}

func slotsCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "slots <facility>",
		Short: "Print the current slots of a facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slots, err := newClient().Slots(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT\tSTATUS")
			for _, s := range slots {
				fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Status)
			}
			return tw.Flush()
		},
	}
}

func watchCmd(newClient func() *client.Client) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch <facility>",
		Short: "Stream live occupancy of a facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			seen := 0
			return newClient().Watch(cmd.Context(), args[0], func(slots []parking.Slot) error {
				available := 0
				var occupied []string
				for _, s := range slots {
					if s.Status == parking.Available {
						available++
					} else {
						occupied = append(occupied, s.ID)
					}
				}
				fmt.Fprintf(out, "%s available=%d occupied=%d", args[0], available, len(occupied))
				if len(occupied) > 0 && len(occupied) <= 10 {
					fmt.Fprintf(out, " [%s]", strings.Join(occupied, " "))
				}
				fmt.Fprintln(out)

				seen++
				if count > 0 && seen >= count {
					return client.ErrStop
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many snapshots (0 = until interrupted)")
	return cmd
}

func exportCmd(newClient func() *client.Client) *cobra.Command {
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <facility>",
		Short: "Export a facility snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "csv":
			default:
				return fmt.Errorf("unknown format %q (use json|csv)", format)
			}
			b, err := newClient().Export(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(outPath, b, 0644)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format: json|csv")
	cmd.Flags().StringVar(&outPath, "out", "-", "output path (or - for stdout)")
	return cmd
}
