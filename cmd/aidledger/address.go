package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aidledger/core/address"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Derive record addresses locally",
}

var addressNgoCmd = &cobra.Command{
	Use:   "ngo",
	Short: "Derive the NGO record address for an admin",
	Example: `  aidledger address ngo --admin 4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw
  aidledger address ngo   # uses the --keypair public key`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := programID()
		if err != nil {
			return err
		}
		adminStr, _ := cmd.Flags().GetString("admin")
		if adminStr == "" {
			kp, err := loadSigner()
			if err != nil {
				return fmt.Errorf("no --admin given and %w", err)
			}
			adminStr = kp.Public.String()
		}
		admin, err := parsePubkey("--admin", adminStr)
		if err != nil {
			return err
		}
		d, err := address.NgoAddress(pid, admin)
		if err != nil {
			return err
		}
		return printDerived(cmd, d)
	},
}

var addressBatchCmd = &cobra.Command{
	Use:     "batch",
	Short:   "Derive a batch record address",
	Example: `  aidledger address batch --ngo FuyQFu85ATE7RWmexEAfGJ3w8FBaMrviqAFX8cpmUPvY --index 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := programID()
		if err != nil {
			return err
		}
		ngoStr, _ := cmd.Flags().GetString("ngo")
		ngo, err := parsePubkey("--ngo", ngoStr)
		if err != nil {
			return err
		}
		index, _ := cmd.Flags().GetUint64("index")
		d, err := address.BatchAddress(pid, ngo, index)
		if err != nil {
			return err
		}
		return printDerived(cmd, d)
	},
}

func printDerived(cmd *cobra.Command, d address.Derived) error {
	return printOut(cmd, map[string]any{"address": d.Address.String(), "bump": d.Bump}, func() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (bump %d)\n", d.Address, d.Bump)
	})
}

func init() {
	rootCmd.AddCommand(addressCmd)
	addressCmd.AddCommand(addressNgoCmd)
	addressCmd.AddCommand(addressBatchCmd)
	addressNgoCmd.Flags().String("admin", "", "Admin public key (default: --keypair public key)")
	addressBatchCmd.Flags().String("ngo", "", "NGO record address (required)")
	addressBatchCmd.Flags().Uint64("index", 0, "Batch index")
	addressBatchCmd.MarkFlagRequired("ngo")
}
