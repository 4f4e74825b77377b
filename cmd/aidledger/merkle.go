package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aidledger/core/merkle"
)

var merkleCmd = &cobra.Command{
	Use:   "merkle <rows-file>",
	Short: "Compute the Merkle root of a file of disbursement rows",
	Long:  "Each non-blank line is one row. Leaves are sha256(0x00 || row), inner nodes sha256(0x01 || left || right); an unpaired node is carried up unchanged.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		leaves, err := merkle.LeavesOfLines(f)
		if err != nil {
			return err
		}
		root := merkle.Root(leaves)

		proofIdx, _ := cmd.Flags().GetInt("proof")
		if proofIdx < 0 {
			return printOut(cmd, map[string]any{"root": hex.EncodeToString(root[:]), "rows": len(leaves)}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "root: %x\nrows: %d\n", root, len(leaves))
			})
		}
		proof, ok := merkle.BuildProof(leaves, proofIdx)
		if !ok {
			return fmt.Errorf("row %d out of range (%d rows)", proofIdx, len(leaves))
		}
		siblings := make([]string, len(proof.Siblings))
		for i, s := range proof.Siblings {
			siblings[i] = hex.EncodeToString(s[:])
		}
		leaf := leaves[proofIdx]
		return printOut(cmd, map[string]any{
			"root":     hex.EncodeToString(root[:]),
			"index":    proofIdx,
			"size":     proof.Size,
			"leaf":     hex.EncodeToString(leaf[:]),
			"siblings": siblings,
		}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "root: %x\nleaf %d: %x\n", root, proofIdx, leaf)
			for i, s := range siblings {
				fmt.Fprintf(cmd.OutOrStdout(), "  sibling %d: %s\n", i, s)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(merkleCmd)
	merkleCmd.Flags().Int("proof", -1, "Also print the inclusion proof for this row")
}
