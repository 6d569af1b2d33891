package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/strandauth/strand/cmd/strandctl/client"
)

var (
	serverURL string
	adminKey  string
)

var rootCmd = &cobra.Command{
	Use:   "strandctl",
	Short: "strandctl manages a strand authorization server",
	Long: `A command-line interface for the strand OAuth 2.0 authorization server:
client registration and lifecycle, token introspection and revocation.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// api builds the HTTP client from the resolved flags.
func api() *client.API {
	return client.New(serverURL, adminKey)
}

func printYAML(v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "strand server base URL")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", "", "admin API key (env STRANDCTL_ADMIN_KEY)")

	// Environment variables back every persistent flag, so the key does
	// not have to sit in shell history.
	viper.SetEnvPrefix("STRANDCTL")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("admin_key", rootCmd.PersistentFlags().Lookup("admin-key"))
	cobra.OnInitialize(func() {
		serverURL = viper.GetString("server")
		adminKey = viper.GetString("admin_key")
	})
}
