package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/protega/cloudpay/server/internal/enclave"
)

// MasterKeyEnvVar names the variable the server also reads its key from.
const MasterKeyEnvVar = "CLOUDPAY_MASTER_KEY"

func (a *App) masterSecret() (enclave.MasterSecret, error) {
	if v := strings.TrimSpace(os.Getenv(MasterKeyEnvVar)); v != "" {
		return enclave.NewMasterSecret(v)
	}
	if a.ReadSecret == nil {
		return enclave.MasterSecret{}, fmt.Errorf("%w: set %s", enclave.ErrSecretMissing, MasterKeyEnvVar)
	}
	b, err := a.ReadSecret("Master key: ")
	if err != nil {
		return enclave.MasterSecret{}, err
	}
	defer clear(b)
	return enclave.NewMasterSecret(string(b))
}

// readPassword reads without echo from the terminal, falling back to
// /dev/tty when stdin is piped.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	if term.IsTerminal(int(syscall.Stdin)) {
		return term.ReadPassword(int(syscall.Stdin))
	}

	tty, err := os.Open("/dev/tty")
	if err != nil {
		return nil, errors.New("cannot prompt for the master key: stdin is piped and /dev/tty is not available; set " + MasterKeyEnvVar)
	}
	defer tty.Close()
	return term.ReadPassword(int(tty.Fd()))
}
