package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"aidledger/core/address"
	"aidledger/core/merkle"
	"aidledger/core/program"
	"aidledger/core/state"
	"aidledger/core/validation"
	"aidledger/types/ids"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Commit a disbursement batch for the signer's NGO",
	Example: `  aidledger submit --index 0 --rows rows.csv --data-uri ipfs://batch0 --region east-africa --program-tag food-aid
  aidledger submit --manifest batch0.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := programID()
		if err != nil {
			return err
		}
		ins, err := batchFromFlags(cmd)
		if err != nil {
			return err
		}
		if ins.Ngo.IsZero() {
			kp, err := loadSigner()
			if err != nil {
				return err
			}
			d, err := address.NgoAddress(pid, kp.Public)
			if err != nil {
				return err
			}
			ins.Ngo = d.Address
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return sendInstruction(cmd, ins, dryRun)
	},
}

func batchFromFlags(cmd *cobra.Command) (program.SubmitBatch, error) {
	var ins program.SubmitBatch
	f := cmd.Flags()

	if ngoStr, _ := f.GetString("ngo"); ngoStr != "" {
		ngo, err := parsePubkey("--ngo", ngoStr)
		if err != nil {
			return ins, err
		}
		ins.Ngo = ngo
	}

	if manifestPath, _ := f.GetString("manifest"); manifestPath != "" {
		return batchFromManifest(ins.Ngo, manifestPath)
	}

	ins.BatchIndex, _ = f.GetUint64("index")
	ins.DataURI, _ = f.GetString("data-uri")
	ins.Region, _ = f.GetString("region")
	ins.ProgramTag, _ = f.GetString("program-tag")
	ins.StartTime, _ = f.GetInt64("start")
	ins.EndTime, _ = f.GetInt64("end")
	if !f.Changed("start") {
		ins.StartTime = time.Now().Unix()
	}
	if !f.Changed("end") {
		ins.EndTime = ins.StartTime + 86400
	}

	rootHex, _ := f.GetString("root")
	rows, _ := f.GetString("rows")
	switch {
	case rootHex != "" && rows != "":
		return ins, fmt.Errorf("--root and --rows are mutually exclusive")
	case rootHex != "":
		root, err := state.ParseMerkleRoot(rootHex)
		if err != nil {
			return ins, fmt.Errorf("--root: %w", err)
		}
		ins.MerkleRoot = root
	case rows != "":
		root, err := rootOfFile(rows)
		if err != nil {
			return ins, err
		}
		ins.MerkleRoot = root
	}
	return ins, nil
}

func batchFromManifest(ngo ids.Pubkey, path string) (program.SubmitBatch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return program.SubmitBatch{}, err
	}
	v, err := validation.New(nil)
	if err != nil {
		return program.SubmitBatch{}, err
	}
	m, err := v.DecodeManifest(raw)
	if err != nil {
		return program.SubmitBatch{}, fmt.Errorf("%s: %w", path, err)
	}
	ins := program.SubmitBatch{
		Ngo:        ngo,
		BatchIndex: m.BatchIndex,
		DataURI:    m.DataURI,
		Region:     m.Region,
		ProgramTag: m.ProgramTag,
		StartTime:  m.StartTime,
		EndTime:    m.EndTime,
	}
	if m.MerkleRoot != nil {
		ins.MerkleRoot = *m.MerkleRoot
		return ins, nil
	}
	rows := m.RowsFile
	if !filepath.IsAbs(rows) {
		rows = filepath.Join(filepath.Dir(path), rows)
	}
	ins.MerkleRoot, err = rootOfFile(rows)
	return ins, err
}

func rootOfFile(path string) (state.MerkleRoot, error) {
	f, err := os.Open(path)
	if err != nil {
		return state.MerkleRoot{}, err
	}
	defer f.Close()
	root, _, err := merkle.RootOfLines(f)
	return root, err
}

func init() {
	rootCmd.AddCommand(submitCmd)
	f := submitCmd.Flags()
	f.String("ngo", "", "NGO record address (default: derived from the signer)")
	f.String("manifest", "", "JSON batch manifest; replaces the field flags")
	f.Uint64("index", 0, "Batch index")
	f.String("root", "", "Merkle root as 64 hex characters (default: all zero)")
	f.String("rows", "", "Rows file to compute the Merkle root from")
	f.String("data-uri", "", "Pointer to the batch data (max 256 bytes)")
	f.String("region", "", "Region label (max 64 bytes)")
	f.String("program-tag", "", "Program label (max 64 bytes)")
	f.Int64("start", 0, "Start of the batch period, unix seconds (default: now)")
	f.Int64("end", 0, "End of the batch period, unix seconds (default: start + 1 day)")
	f.Bool("dry-run", false, "Inspect the transaction on the node without executing it")
}
