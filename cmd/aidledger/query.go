package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"aidledger/core/state"
	"aidledger/types/ids"
)

var ngoCmd = &cobra.Command{
	Use:   "ngo [address]",
	Short: "Show an NGO record by address or by admin",
	Example: `  aidledger ngo FuyQFu85ATE7RWmexEAfGJ3w8FBaMrviqAFX8cpmUPvY
  aidledger ngo --admin 4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		adminStr, _ := cmd.Flags().GetString("admin")
		if len(args) == 1 {
			addr, err := parsePubkey("address", args[0])
			if err != nil {
				return err
			}
			resp, err := c.GetNgo(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return printOut(cmd, resp, func() { printNgo(cmd.OutOrStdout(), resp.Address, resp.Ngo) })
		}
		if adminStr == "" {
			kp, err := loadSigner()
			if err != nil {
				return fmt.Errorf("give an address or --admin: %w", err)
			}
			adminStr = kp.Public.String()
		}
		admin, err := parsePubkey("--admin", adminStr)
		if err != nil {
			return err
		}
		resp, err := c.GetNgoByAdmin(cmd.Context(), admin)
		if err != nil {
			return err
		}
		return printOut(cmd, resp, func() { printNgo(cmd.OutOrStdout(), resp.Address, resp.Ngo) })
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [address]",
	Short: "Show a batch record by address or by NGO and index",
	Example: `  aidledger batch HdjjzFyyjdDxVm1jFPwQEQySfiwkRq9Nbq59DYUtWNmh
  aidledger batch --ngo FuyQFu85ATE7RWmexEAfGJ3w8FBaMrviqAFX8cpmUPvY --index 0`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if len(args) == 1 {
			addr, err := parsePubkey("address", args[0])
			if err != nil {
				return err
			}
			resp, err := c.GetBatch(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return printOut(cmd, resp, func() { printBatch(cmd.OutOrStdout(), resp.Address, resp.Batch) })
		}
		ngoStr, _ := cmd.Flags().GetString("ngo")
		if ngoStr == "" {
			return fmt.Errorf("give an address or --ngo and --index")
		}
		ngo, err := parsePubkey("--ngo", ngoStr)
		if err != nil {
			return err
		}
		index, _ := cmd.Flags().GetUint64("index")
		resp, err := c.GetBatchByIndex(cmd.Context(), ngo, index)
		if err != nil {
			return err
		}
		return printOut(cmd, resp, func() { printBatch(cmd.OutOrStdout(), resp.Address, resp.Batch) })
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		accounts, err := newClient().ListAccounts(cmd.Context(), state.Kind(kind))
		if err != nil {
			return err
		}
		return printOut(cmd, accounts, func() {
			w := cmd.OutOrStdout()
			for _, a := range accounts {
				switch {
				case a.Ngo != nil:
					fmt.Fprintf(w, "%-44s ngo    admin=%s uri=%s\n", a.Address, a.Ngo.Admin, a.Ngo.MetadataURI)
				case a.Batch != nil:
					fmt.Fprintf(w, "%-44s batch  ngo=%s index=%d root=%s\n", a.Address, a.Batch.Ngo, a.Batch.BatchIndex, a.Batch.MerkleRoot)
				default:
					fmt.Fprintf(w, "%-44s %s\n", a.Address, a.Kind)
				}
			}
			fmt.Fprintf(w, "%d record(s)\n", len(accounts))
		})
	},
}

func printNgo(w io.Writer, addr ids.Pubkey, n *state.Ngo) {
	fmt.Fprintf(w, "NGO %s\n", addr)
	fmt.Fprintf(w, "  admin:        %s\n", n.Admin)
	fmt.Fprintf(w, "  metadata_uri: %s\n", n.MetadataURI)
	fmt.Fprintf(w, "  is_active:    %v\n", n.IsActive)
	fmt.Fprintf(w, "  created_at:   %d\n", n.CreatedAt)
	fmt.Fprintf(w, "  bump:         %d\n", n.Bump)
}

func printBatch(w io.Writer, addr ids.Pubkey, b *state.Batch) {
	fmt.Fprintf(w, "Batch %s\n", addr)
	fmt.Fprintf(w, "  ngo:         %s\n", b.Ngo)
	fmt.Fprintf(w, "  batch_index: %d\n", b.BatchIndex)
	fmt.Fprintf(w, "  merkle_root: %s\n", b.MerkleRoot)
	fmt.Fprintf(w, "  data_uri:    %s\n", b.DataURI)
	fmt.Fprintf(w, "  region:      %s\n", b.Region)
	fmt.Fprintf(w, "  program_tag: %s\n", b.ProgramTag)
	fmt.Fprintf(w, "  period:      %d - %d\n", b.StartTime, b.EndTime)
	fmt.Fprintf(w, "  is_flagged:  %v\n", b.IsFlagged)
}

func init() {
	rootCmd.AddCommand(ngoCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(accountsCmd)
	ngoCmd.Flags().String("admin", "", "Look up by admin public key (default: --keypair public key)")
	batchCmd.Flags().String("ngo", "", "NGO record address")
	batchCmd.Flags().Uint64("index", 0, "Batch index")
	accountsCmd.Flags().String("kind", "", "Filter: ngo|batch")
}
