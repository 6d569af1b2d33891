package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/strandauth/strand/domain"
	"github.com/strandauth/strand/services"
)

var clientCmd = &cobra.Command{
	Use:     "client",
	Short:   "Manage OAuth2 clients",
	Aliases: []string{"clients"},
}

var clientRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new client; the secret is printed exactly once",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		redirectURIs, _ := cmd.Flags().GetStringArray("redirect-uri")
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		public, _ := cmd.Flags().GetBool("public")
		noRotate, _ := cmd.Flags().GetBool("no-rotate")

		req := &services.RegisterClientRequest{
			Name:         name,
			Description:  description,
			RedirectURIs: redirectURIs,
			Scopes:       scopes,
		}
		if public {
			confidential := false
			req.Confidential = &confidential
		}
		if noRotate {
			rotate := false
			req.RotateRefreshTokens = &rotate
		}

		var resp services.RegisterClientResponse
		if err := api().Do(http.MethodPost, "/admin/clients", req, &resp); err != nil {
			return err
		}
		return printYAML(resp)
	},
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered client",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Clients []*domain.Client `json:"clients"`
		}
		if err := api().Do(http.MethodGet, "/admin/clients", nil, &out); err != nil {
			return err
		}
		return printYAML(out.Clients)
	},
}

var clientGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one client by internal ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out domain.Client
		if err := api().Do(http.MethodGet, "/admin/clients/"+args[0], nil, &out); err != nil {
			return err
		}
		return printYAML(out)
	},
}

var clientUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a client's mutable fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var upd domain.ClientUpdate
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			upd.Name = &name
		}
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			upd.Description = &description
		}
		if cmd.Flags().Changed("redirect-uri") {
			upd.RedirectURIs, _ = cmd.Flags().GetStringArray("redirect-uri")
		}
		if cmd.Flags().Changed("scope") {
			upd.Scopes, _ = cmd.Flags().GetStringSlice("scope")
		}
		if cmd.Flags().Changed("rotate-refresh-tokens") {
			rotate, _ := cmd.Flags().GetBool("rotate-refresh-tokens")
			upd.RotateRefreshTokens = &rotate
		}

		var out domain.Client
		if err := api().Do(http.MethodPatch, "/admin/clients/"+args[0], &upd, &out); err != nil {
			return err
		}
		return printYAML(out)
	},
}

var clientRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a client and every token issued to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api().Do(http.MethodDelete, "/admin/clients/"+args[0], nil, nil); err != nil {
			return err
		}
		cmd.Println("Client revoked.")
		return nil
	},
}

var clientRotateSecretCmd = &cobra.Command{
	Use:   "rotate-secret <id>",
	Short: "Replace a client's secret; prints the new one exactly once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			ClientSecret string `json:"client_secret" yaml:"client_secret"`
		}
		if err := api().Do(http.MethodPost, "/admin/clients/"+args[0]+"/secret", nil, &out); err != nil {
			return err
		}
		return printYAML(out)
	},
}

func init() {
	clientRegisterCmd.Flags().String("name", "", "display name (required)")
	clientRegisterCmd.Flags().String("description", "", "description shown on the consent page")
	clientRegisterCmd.Flags().StringArray("redirect-uri", nil, "allowed redirect URI (repeatable)")
	clientRegisterCmd.Flags().StringSlice("scope", nil, "allowed scope (repeatable)")
	clientRegisterCmd.Flags().Bool("public", false, "register a public client (PKCE instead of a secret)")
	clientRegisterCmd.Flags().Bool("no-rotate", false, "disable refresh token rotation tracking")
	_ = clientRegisterCmd.MarkFlagRequired("name")

	clientUpdateCmd.Flags().String("name", "", "display name")
	clientUpdateCmd.Flags().String("description", "", "description shown on the consent page")
	clientUpdateCmd.Flags().StringArray("redirect-uri", nil, "allowed redirect URI (repeatable, replaces the set)")
	clientUpdateCmd.Flags().StringSlice("scope", nil, "allowed scope (repeatable, replaces the set)")
	clientUpdateCmd.Flags().Bool("rotate-refresh-tokens", true, "track refresh token rotation")

	clientCmd.AddCommand(clientRegisterCmd, clientListCmd, clientGetCmd,
		clientUpdateCmd, clientRevokeCmd, clientRotateSecretCmd)
	rootCmd.AddCommand(clientCmd)
}
