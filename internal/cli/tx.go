package cli

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/ergo"
	"github.com/mrz1836/warden/internal/fileutil"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// maxTxFileSize bounds an unsigned transaction file.
const maxTxFileSize = 4 << 20

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	txFile   string
	txOut    string
	txIndex  uint32
	txChange int64
)

// txCmd is the parent command for transaction operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Sign transactions",
	Long: `Sign unsigned Ergo transactions prepared by a wallet or node.

Transactions are read as JSON with hex encoded box ids, trees and token ids.
Building transactions and broadcasting them is left to the wallet.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txSignCmd = &cobra.Command{
	Use:   "sign <name>",
	Short: "Sign an unsigned transaction",
	Long: `Sign the transaction in --tx with the key called name.

A LEDGER key attests every input on the device, shows the outputs for
approval and returns one proof that spends all inputs. --change marks the
output at m/44'/429'/0'/0/<change> so the device does not ask about it.

A LOCAL key needs the sigma prover of a node backed wallet; without one the
command fails with NOT_SUPPORTED.`,
	Example: `  warden tx sign cold --tx unsigned.json
  warden tx sign cold --tx unsigned.json --change 1 --out signed.json`,
	Args: cobra.ExactArgs(1),
	RunE: runTxSign,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	txCmd.GroupID = "keys"
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txSignCmd)

	txSignCmd.Flags().StringVar(&txFile, "tx", "", "unsigned transaction JSON file (- for stdin)")
	txSignCmd.Flags().StringVar(&txOut, "out", "", "write the signed transaction to this file")
	txSignCmd.Flags().Uint32Var(&txIndex, "index", 0, "address index of the signing key")
	txSignCmd.Flags().Int64Var(&txChange, "change", -1, "address index of the change output, -1 for none")
	txSignCmd.Flags().DurationVar(&deviceTimeout, "timeout", defaultDeviceTimeout, "give up on the device after this long")
	_ = txSignCmd.MarkFlagRequired("tx")
}

// readUnsignedTx decodes the transaction in path, or stdin for "-".
func readUnsignedTx(path string) (*ergo.UnsignedTransaction, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, maxTxFileSize+1))
		if err == nil && len(data) > maxTxFileSize {
			err = fileutil.ErrTooLarge
		}
	} else {
		data, err = fileutil.ReadLimited(path, maxTxFileSize)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, wardenerr.WithDetails(wardenerr.ErrNotFound, map[string]string{"file": path})
	}
	if err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidInput, "reading transaction: %v", err)
	}

	var tx ergo.UnsignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidInput, "decoding transaction: %v", err)
	}
	if len(tx.Inputs) == 0 {
		return nil, wardenerr.Wrap(wardenerr.ErrInvalidInput, "transaction has no inputs")
	}
	return &tx, nil
}

// signedResult wraps a signed transaction for text output.
type signedResult struct {
	*ergo.SignedTransaction
}

func (r signedResult) RenderText(w io.Writer) error {
	out(w, "Signed %d input(s)\n", len(r.Proofs))
	if len(r.Proofs) > 0 {
		out(w, "Proof:  %s\n", hex.EncodeToString(r.Proofs[0].Proof))
	}
	return nil
}

func runTxSign(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	tx, err := readUnsignedTx(txFile)
	if err != nil {
		return err
	}
	network, err := cc.Network()
	if err != nil {
		return err
	}
	var change *uint32
	if txChange >= 0 {
		if txChange >= int64(ergo.H(0)) {
			return wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"change": "must be below the hardened range"})
		}
		c := uint32(txChange)
		change = &c
	}

	ctx, cancel := deviceContext(cmd)
	defer cancel()
	k, _, err := cc.openKey(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeKey(k)

	signed, err := k.Sign(ctx, ergo.OfflineContext{Network: network}, tx, []uint32{txIndex}, change)
	if err != nil {
		return err
	}
	if signed == nil {
		return wardenerr.Wrap(wardenerr.ErrDeviceDenied, "signing request rejected on the device")
	}
	cc.Log.Debug("signed %d inputs with %s", len(signed.Proofs), args[0])

	if txOut != "" {
		data, err := json.MarshalIndent(signed, "", "  ")
		if err != nil {
			return err
		}
		if err := fileutil.WriteAtomic(txOut, append(data, '\n'), 0o644); err != nil {
			return err
		}
		cc.Msg.Success("signed transaction written to %s", txOut)
	}
	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(signed)
	}
	return cc.Fmt.Print(signedResult{signed})
}
