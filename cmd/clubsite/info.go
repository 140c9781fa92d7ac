package main

import (
	"github.com/spf13/cobra"

	"clubsite/internal/api"
	"clubsite/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage backend and newsletter counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("api_url: %s\n", cfg.APIURL)
				_ = writePlain("backend: %s\n", resp.Backend)
				if resp.SchemaVersion > 0 {
					_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				}
				_ = writePlain("identity: %s\n", resp.Identity)
				_ = writePlain("posts: %d\n", resp.PostCount)
				return writePlain("files: %d\n", resp.FileCount)
			})
		},
	}
}
