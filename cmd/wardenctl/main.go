// Command wardenctl is the operator tool for a warden deployment: schema migrations,
// provisioning identities, issuing reset tokens, one-off expiry sweeps and key generation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const usage = `usage: wardenctl <command> [flags]

commands:
  migrate      apply schema migrations (-dialect postgres|sqlite)
  create-user  provision an identity (-username, -email, -role, -admin)
  reset-token  issue a password reset token for an email (-email)
  sweep        delete expired sessions once from the configured store
  keygen       print fresh PASETO v4 and refresh-digest HMAC keys
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()

	switch {
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintf(os.Stderr, "wardenctl: %v\n", err)
		}
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "wardenctl: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return runMigrate(ctx, rest, stderr)
	case "create-user":
		return runCreateUser(ctx, rest, stdin, stdout, stderr)
	case "reset-token":
		return runResetToken(ctx, rest, stdout, stderr)
	case "sweep":
		return runSweep(ctx, rest, stdout, stderr)
	case "keygen":
		return runKeygen(stdout)
	case "help", "-h", "--help":
		_, err := fmt.Fprint(stdout, usage)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
