package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aidledger/core"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new signer keypair",
	Example: `  aidledger keygen --outfile ngo-admin.json
  aidledger keygen --outfile ngo-admin.json -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("outfile")
		if out == "" {
			out = flagKeypair
		}
		kp, err := core.GenerateKeypair()
		if err != nil {
			return err
		}
		if err := core.SaveKeypair(out, kp); err != nil {
			return err
		}
		return printOut(cmd, map[string]string{"pubkey": kp.Public.String(), "path": out}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote keypair to %s\npubkey: %s\n", out, kp.Public)
		})
	},
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "Print the public key of the signer keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := loadSigner()
		if err != nil {
			return err
		}
		return printOut(cmd, map[string]string{"pubkey": kp.Public.String(), "hex": kp.Public.Hex()}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), kp.Public)
		})
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(pubkeyCmd)
	keygenCmd.Flags().String("outfile", "", "Where to write the keypair (default: --keypair path)")
}
