package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"jajanin-relay/internal/backend"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	defaultURL := os.Getenv("BACKEND_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "jajanctl",
		Short:         "jajanctl - operator tool for Jajanin alerts and payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("backend", defaultURL, "Jajanin API base URL")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(testAlertCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(feeCmd())

	return rootCmd
}

func backendURL(cmd *cobra.Command) string {
	url, _ := cmd.Flags().GetString("backend")
	return strings.TrimRight(url, "/")
}

func newClient(cmd *cobra.Command) *backend.Client {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return backend.NewClient(backendURL(cmd), timeout)
}
