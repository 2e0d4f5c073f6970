package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/keywarden/keywarden/internal/auth"
	"github.com/keywarden/keywarden/internal/identity"
)

var (
	successPrefix = color.GreenString("[ok] ")
	errorPrefix   = color.RedString("[error] ")
)

func printSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stdout, successPrefix+format+"\n", args...)
}

func printError(err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		fmt.Fprintf(os.Stderr, errorPrefix+"%s\n", authErr.Message)
		if authErr.Hint != "" {
			fmt.Fprintf(os.Stderr, "%s\n", color.YellowString(authErr.Hint))
		}
		return
	}
	fmt.Fprintf(os.Stderr, errorPrefix+"%v\n", err)
}

// printSessionExport shows the canonical way to carry the session key into
// subsequent invocations.
func printSessionExport(key string) {
	fmt.Fprintln(os.Stdout)
	fmt.Fprintf(os.Stdout, "To use this session in your current shell, run:\n")
	fmt.Fprintf(os.Stdout, "$ export KEYWARDEN_SESSION=%q\n", key)
}

// readPassword reads a password without echo when stdin is a terminal and
// falls back to a plain line read for pipes.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		defer fmt.Fprintln(os.Stderr)
		return term.ReadPassword(fd)
	}
	line, err := readLine()
	return []byte(line), err
}

func readLine() (string, error) {
	r := bufio.NewReader(os.Stdin)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptTwoFactor(providers []string) (*identity.TwoFactor, error) {
	provider := 0
	if len(providers) == 1 {
		if p, err := strconv.Atoi(providers[0]); err == nil {
			provider = p
		}
	}
	fmt.Fprint(os.Stderr, "Two-step login code: ")
	token, err := readLine()
	if err != nil {
		return nil, err
	}
	return &identity.TwoFactor{Token: token, Provider: provider}, nil
}

func promptNewDeviceOTP() (string, error) {
	fmt.Fprint(os.Stderr, "Enter the verification code sent to your email: ")
	return readLine()
}
