package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/netpanel/pkg/client"
)

// Snapshot commands go through a running server
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and remove snapshots on a running server",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loggedInClient(cmd)
		if err != nil {
			return err
		}
		snaps, err := c.ListSnapshots()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tNODES\tDELETABLE")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", s.ID, s.Name, len(s.Nodes), s.IsDeletable())
		}
		return w.Flush()
	},
}

var snapshotRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loggedInClient(cmd)
		if err != nil {
			return err
		}
		snap, err := c.RenameSnapshot(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Snapshot %s renamed to %s\n", snap.ID, snap.Name)
		return nil
	},
}

var snapshotRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"delete"},
	Short:   "Delete a snapshot",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loggedInClient(cmd)
		if err != nil {
			return err
		}
		snap, err := c.DeleteSnapshot(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Snapshot %s (%s) deleted\n", snap.Name, snap.ID)
		return nil
	},
}

func init() {
	flags := snapshotCmd.PersistentFlags()
	flags.String("server", "localhost:8000", "netpanel server address")
	flags.StringP("username", "u", os.Getenv("USER"), "User to log in as")
	flags.String("password", "", "Password (NETPANEL_PASSWORD or stdin when omitted)")

	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRenameCmd)
	snapshotCmd.AddCommand(snapshotRemoveCmd)
}

// loggedInClient connects to --server and logs in. NETPANEL_TOKEN skips the
// login.
func loggedInClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("server")
	c, err := client.NewClient(addr)
	if err != nil {
		return nil, err
	}

	if token := os.Getenv("NETPANEL_TOKEN"); token != "" {
		c.SetToken(token)
		return c, nil
	}

	username, _ := cmd.Flags().GetString("username")
	if username == "" {
		return nil, fmt.Errorf("--username is required")
	}
	password := os.Getenv("NETPANEL_PASSWORD")
	if password == "" {
		if password, err = readPassword(cmd, "Password: "); err != nil {
			return nil, err
		}
	}

	if _, err := c.Login(username, password); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return c, nil
}
