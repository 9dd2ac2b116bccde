// Package cli implements cloudpayctl, the operator tool for the enclave:
// hashing and sealing templates offline, generating master keys and
// inspecting the effective server configuration.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// App carries the streams and secret source a command runs against.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// ReadSecret prompts for the master key when it is not in the
	// environment.
	ReadSecret func(prompt string) ([]byte, error)
}

func defaultApp() *App {
	return &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr, ReadSecret: readPassword}
}

func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "cloudpayctl",
		Short:         "CloudPay enclave and configuration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	root.AddCommand(
		newHashCmd(app),
		newEncryptCmd(app),
		newDecryptCmd(app),
		newKeygenCmd(app),
		newConfigCmd(app),
	)
	return root
}

// Execute runs the root command
func Execute(version string) error {
	app := defaultApp()
	root := NewRootCmd(app)
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(app.Err, "Error:", err)
		return err
	}
	return nil
}
