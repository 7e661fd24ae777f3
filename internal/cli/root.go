package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/investable/accessgate/internal/config"
)

var (
	flagConfig string
	flagAs     string
	flagName   string
	flagKind   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:           "accessgate",
	Short:         "Request, watch and decide access to protected resources",
	Long:          "Client for the accessgate ledger. Viewers request access and watch its status; approvers list and decide pending requests.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ./accessgate.yaml)")
	pf.StringVar(&flagAs, "as", "", "Identity to act as (email)")
	pf.StringVar(&flagName, "name", "", "Display name of the acting identity")
	pf.StringVar(&flagKind, "kind", "", "Principal kind: viewer, operator or approver")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
