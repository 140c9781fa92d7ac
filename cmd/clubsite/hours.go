package main

import (
	"os"

	"github.com/spf13/cobra"

	"clubsite/internal/api"
	"clubsite/internal/config"
	"clubsite/internal/identity"
)

func newHoursCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "View and manage member volunteer hours",
	}
	cmd.AddCommand(
		newHoursListCmd(cfg, jsonOutput),
		newHoursSetCmd(cfg, jsonOutput),
	)
	return cmd
}

func newHoursListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members with their role and hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				users, err := client.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(users)
				}
				return writeUserList(users)
			})
		},
	}
}

func newHoursSetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "set <userID> <hours>",
		Short: "Set a member's hours (admin and lead only)",
		Args:  namedArgs("userID", "hours"),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := identity.ParseHours(args[1])
			if err != nil {
				return err
			}
			actor := firstNonEmpty(as, os.Getenv(userIDEnvKey))

			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				user, err := client.WithActor(actor).EditUserHours(cmd.Context(), args[0], hours)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(user)
				}

				// Re-fetch the roster after a change.
				users, err := client.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				return writeUserList(users)
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "user id of the admin or lead making the change (default $CLUBSITE_USER_ID)")
	return cmd
}
