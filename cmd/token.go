package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusqa/campusqa/internal/auth"
	"github.com/campusqa/campusqa/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <owner-id>",
	Short: "Mint a bearer token for an owner",
	Long: `Token signs a bearer token for the given owner ID using the
configured auth secret. Clients send it as:

  Authorization: Bearer <token>`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runToken(args[0])
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(ownerID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.AuthSecret == "" {
		return config.ErrMissingAuthSecret
	}

	token, err := auth.NewHMAC(cfg.AuthSecret).Issue(ownerID, tokenTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Println(token)
	return nil
}
