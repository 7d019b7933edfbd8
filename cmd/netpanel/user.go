package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/netpanel/pkg/security"
)

// User commands work on the users file directly. A running server picks
// up changes on its next lookup.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage panel users",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := openUsers(cmd)
		if err != nil {
			return err
		}
		fullName, _ := cmd.Flags().GetString("full-name")
		password, err := readPassword(cmd, "Password: ")
		if err != nil {
			return err
		}

		u, err := users.Add(args[0], fullName, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ User %s added (uid %d)\n", u.Username, u.UID)
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd USERNAME",
	Short: "Change a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := openUsers(cmd)
		if err != nil {
			return err
		}
		password, err := readPassword(cmd, "New password: ")
		if err != nil {
			return err
		}
		if err := users.SetPassword(args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Password of %s changed\n", args[0])
		return nil
	},
}

func setDisabledCmd(use, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " USERNAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := openUsers(cmd)
			if err != nil {
				return err
			}
			if err := users.SetDisabled(args[0], disabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ User %s %sd\n", args[0], use)
			return nil
		},
	}
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := openUsers(cmd)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tUSERNAME\tFULL NAME\tSTATUS")
		for _, u := range users.List() {
			status := "enabled"
			if u.Disabled {
				status = "disabled"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.UID, u.Username, u.FullName, status)
		}
		return w.Flush()
	},
}

func init() {
	userCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides the config file)")

	userAddCmd.Flags().String("full-name", "", "Display name")
	userAddCmd.Flags().String("password", "", "Password (read from stdin when omitted)")
	userPasswdCmd.Flags().String("password", "", "New password (read from stdin when omitted)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(setDisabledCmd("disable", "Disable a user", true))
	userCmd.AddCommand(setDisabledCmd("enable", "Re-enable a user", false))
	userCmd.AddCommand(userListCmd)
}

func openUsers(cmd *cobra.Command) (*security.UsersFile, error) {
	cfg, err := localConfig(cmd)
	if err != nil {
		return nil, err
	}
	return security.NewUsersFile(cfg.UsersPath())
}
