package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aidledger/api/client"
	"aidledger/core"
	"aidledger/core/program"
	"aidledger/types/ids"
)

var (
	flagURL       string
	flagToken     string
	flagProgramID string
	flagKeypair   string
	flagOutput    string
)

var rootCmd = &cobra.Command{
	Use:           "aidledger",
	Short:         "aidledger registry CLI",
	Long:          "A command-line tool for registering NGOs and committing disbursement batches to an aidledger node.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", envOr("AIDLEDGER_URL", client.DefaultBaseURL), "Node API base URL")
	pf.StringVar(&flagToken, "token", os.Getenv("AIDLEDGER_TOKEN"), "Bearer token for transaction submission")
	pf.StringVar(&flagProgramID, "program-id", envOr("AIDLEDGER_PROGRAM_ID", program.DefaultProgramID.String()), "Registry program id")
	pf.StringVarP(&flagKeypair, "keypair", "k", envOr("AIDLEDGER_KEYPAIR", defaultKeypairPath()), "Signer keypair file")
	pf.StringVarP(&flagOutput, "output", "o", "plain", "Output format: plain|json")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *client.Client {
	c := client.New(flagURL)
	c.Token = flagToken
	return c
}

func programID() (ids.Pubkey, error) {
	pid, err := ids.FromBase58(flagProgramID)
	if err != nil {
		return ids.Empty, fmt.Errorf("--program-id: %w", err)
	}
	return pid, nil
}

func loadSigner() (*core.Keypair, error) {
	return core.LoadKeypair(flagKeypair)
}

// printOut writes v as indented JSON for -o json, otherwise calls plain.
func printOut(cmd *cobra.Command, v any, plain func()) error {
	if flagOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}

// parsePubkey accepts base58 or, for keys copied from hex tooling, 64 hex
// characters. A 32-byte key is never 64 characters in base58.
func parsePubkey(name, s string) (ids.Pubkey, error) {
	if len(s) == 64 {
		pk, err := ids.FromHex(s)
		if err != nil {
			return ids.Empty, fmt.Errorf("%s: %w", name, err)
		}
		return pk, nil
	}
	pk, err := ids.FromBase58(s)
	if err != nil {
		return ids.Empty, fmt.Errorf("%s: %w", name, err)
	}
	return pk, nil
}
