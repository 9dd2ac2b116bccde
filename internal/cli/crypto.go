package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/protega/cloudpay/server/internal/enclave"
)

// envelopeSep joins salt and payload in a sealed token.  It is outside the
// base64 alphabet.
const envelopeSep = "."

// keyBytes is the random length keygen encodes; hex doubles it past
// enclave.MinSecretLength.
const keyBytes = 48

var errNoInput = errors.New("no input: pass an argument or pipe one line on stdin")

// input returns args[0], or the first line of stdin when no argument or
// "-" is given.
func input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errNoInput
	}
	return line, nil
}

func newHashCmd(_ *App) *cobra.Command {
	var prefixOnly bool
	cmd := &cobra.Command{
		Use:   "hash [sample|-]",
		Short: "Print the lookup digest of a biometric sample",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, err := input(cmd, args)
			if err != nil {
				return err
			}
			sample = enclave.Normalize(sample)
			if sample == "" {
				return errNoInput
			}
			d := enclave.Hash(sample)
			if prefixOnly {
				fmt.Fprintln(cmd.OutOrStdout(), d.Prefix())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&prefixOnly, "prefix", false, "print only the audit prefix")
	return cmd
}

func newEncryptCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [sample|-]",
		Short: "Seal a normalized sample as salt.payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, err := input(cmd, args)
			if err != nil {
				return err
			}
			c, err := app.cipher(cmd)
			if err != nil {
				return err
			}
			env, err := c.Encrypt([]byte(enclave.Normalize(sample)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), env.Salt+envelopeSep+env.Payload)
			return nil
		},
	}
}

func newDecryptCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [token|-]",
		Short: "Open a salt.payload token sealed under the same master key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := input(cmd, args)
			if err != nil {
				return err
			}
			salt, payload, ok := strings.Cut(strings.TrimSpace(tok), envelopeSep)
			if !ok {
				return enclave.ErrDecryption
			}
			c, err := app.cipher(cmd)
			if err != nil {
				return err
			}
			pt, err := c.Decrypt(enclave.Envelope{Salt: salt, Payload: payload})
			if err != nil {
				return err
			}
			defer clear(pt)
			fmt.Fprintln(cmd.OutOrStdout(), string(pt))
			return nil
		},
	}
}

func newKeygenCmd(_ *App) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := enclave.GenerateToken(keyBytes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func (a *App) cipher(cmd *cobra.Command) (*enclave.Cipher, error) {
	secret, err := a.masterSecret()
	if err != nil {
		return nil, err
	}
	logger := log.New(cmd.ErrOrStderr(), "cloudpayctl ", 0)
	return enclave.NewCipher(enclave.NewKeyDeriver(secret), logger), nil
}
