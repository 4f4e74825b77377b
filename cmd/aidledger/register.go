package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aidledger/core/program"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the signer as an NGO admin",
	Example: `  aidledger register --metadata-uri ipfs://ngo-profile
  aidledger register --metadata-uri ipfs://ngo-profile --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		uri, _ := cmd.Flags().GetString("metadata-uri")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return sendInstruction(cmd, program.RegisterNgo{MetadataURI: uri}, dryRun)
	},
}

// sendInstruction signs ins with the --keypair signer and submits it, or
// only asks the node to inspect it when dryRun is set.
func sendInstruction(cmd *cobra.Command, ins program.Instruction, dryRun bool) error {
	pid, err := programID()
	if err != nil {
		return err
	}
	kp, err := loadSigner()
	if err != nil {
		return err
	}
	tx, err := program.NewTransaction(kp, pid, ins)
	if err != nil {
		return err
	}
	c := newClient()
	if dryRun {
		out, err := c.Inspect(cmd.Context(), tx)
		if err != nil {
			return err
		}
		return printOut(cmd, out, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s by %s would write %s\n", out["instruction"], out["signer"], out["target_address"])
		})
	}
	r, err := c.Submit(cmd.Context(), tx)
	if err != nil {
		return err
	}
	return printOut(cmd, r, func() {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s committed\naddress: %s\n", r.Instruction, r.Address)
		if r.Ngo != nil {
			fmt.Fprintf(w, "admin: %s\nmetadata_uri: %s\n", r.Ngo.Admin, r.Ngo.MetadataURI)
		}
		if r.Batch != nil {
			fmt.Fprintf(w, "ngo: %s\nbatch_index: %d\nmerkle_root: %s\n", r.Batch.Ngo, r.Batch.BatchIndex, r.Batch.MerkleRoot)
		}
		if r.EventSeq != nil {
			fmt.Fprintf(w, "event seq: %d\n", *r.EventSeq)
		}
	})
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().String("metadata-uri", "", "Pointer to the NGO's off-chain profile (max 256 bytes)")
	registerCmd.Flags().Bool("dry-run", false, "Inspect the transaction on the node without executing it")
}
