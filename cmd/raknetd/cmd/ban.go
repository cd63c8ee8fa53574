package cmd

import (
	"context"
	"fmt"
	"net/netip"
	"text/tabwriter"
	"time"

	"github.com/opd-ai/raknet/banlist"
	"github.com/spf13/cobra"
)

var (
	banCmd = &cobra.Command{
		Use:   "ban",
		Short: "Manage the ban list",
	}
	banAddCmd = &cobra.Command{
		Use:   "add <ip>",
		Short: "Ban an address",
		Args:  cobra.ExactArgs(1),
		RunE:  startBanAdd,
	}
	banRemoveCmd = &cobra.Command{
		Use:   "remove <ip>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE:  startBanRemove,
	}
	banListCmd = &cobra.Command{
		Use:   "list",
		Short: "List active bans",
		Args:  cobra.NoArgs,
		RunE:  startBanList,
	}
	banFlags = struct {
		Reason string
		TTL    time.Duration
	}{}
)

func init() {
	banAddCmd.Flags().StringVar(&banFlags.Reason, "reason", "", "why the address is banned")
	banAddCmd.Flags().DurationVar(&banFlags.TTL, "ttl", 0, "ban duration (0 bans forever)")
	banCmd.AddCommand(banAddCmd, banRemoveCmd, banListCmd)
	Root.AddCommand(banCmd)
}

func openBans(cmd *cobra.Command) (*banlist.Store, error) {
	o, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	if o.BanList == "" {
		return nil, fmt.Errorf("no ban list configured, use --ban-list or the config file")
	}
	return banlist.Open(o.BanList, nil)
}

func startBanAdd(cmd *cobra.Command, args []string) error {
	addr, err := netip.ParseAddr(args[0])
	if err != nil {
		return err
	}
	bans, err := openBans(cmd)
	if err != nil {
		return err
	}
	defer bans.Close()
	return bans.Ban(context.Background(), addr, banFlags.Reason, banFlags.TTL)
}

func startBanRemove(cmd *cobra.Command, args []string) error {
	addr, err := netip.ParseAddr(args[0])
	if err != nil {
		return err
	}
	bans, err := openBans(cmd)
	if err != nil {
		return err
	}
	defer bans.Close()
	removed, err := bans.Unban(context.Background(), addr)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(cmd.OutOrStdout(), "%s was not banned\n", addr)
	}
	return nil
}

func startBanList(cmd *cobra.Command, args []string) error {
	bans, err := openBans(cmd)
	if err != nil {
		return err
	}
	defer bans.Close()
	entries, err := bans.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSINCE\tEXPIRES\tREASON")
	for _, e := range entries {
		expires := "never"
		if !e.Expires.IsZero() {
			expires = e.Expires.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Addr, e.Created.Format(time.RFC3339), expires, e.Reason)
	}
	return w.Flush()
}
