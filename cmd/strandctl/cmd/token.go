package cmd

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/strandauth/strand/services"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Introspect and revoke tokens",
}

var tokenIntrospectCmd = &cobra.Command{
	Use:   "introspect <token>",
	Short: "Query a token's state as a registered client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clientID, _ := cmd.Flags().GetString("client-id")
		clientSecret, _ := cmd.Flags().GetString("client-secret")

		form := url.Values{}
		form.Set("token", args[0])

		var resp services.IntrospectionResponse
		if err := api().DoForm("/oauth/introspect", form, clientID, clientSecret, &resp); err != nil {
			return err
		}
		return printYAML(resp)
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a token as a registered client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clientID, _ := cmd.Flags().GetString("client-id")
		clientSecret, _ := cmd.Flags().GetString("client-secret")
		hint, _ := cmd.Flags().GetString("token-type-hint")

		form := url.Values{}
		form.Set("token", args[0])
		if hint != "" {
			form.Set("token_type_hint", hint)
		}

		if err := api().DoForm("/oauth/revoke", form, clientID, clientSecret, nil); err != nil {
			return err
		}
		cmd.Println("Token revoked.")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{tokenIntrospectCmd, tokenRevokeCmd} {
		c.Flags().String("client-id", "", "client_id to authenticate as (required)")
		c.Flags().String("client-secret", "", "client_secret; omit for public clients")
		_ = c.MarkFlagRequired("client-id")
	}
	tokenRevokeCmd.Flags().String("token-type-hint", "", "access_token or refresh_token")

	tokenCmd.AddCommand(tokenIntrospectCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
