package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errPasswordMismatch = errors.New("passwords do not match")

// promptPassword reads the new identity's password. On a terminal it asks twice without echo;
// otherwise it takes the first line of stdin so provisioning can be scripted.
func promptPassword(stdin io.Reader, w io.Writer) (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || !isTerminal(int(f.Fd())) { // #nosec G115 -- file descriptors fit in int.
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	first, err := readHidden(f, w, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := readHidden(f, w, "Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPasswordMismatch
	}
	return first, nil
}

func readHidden(f *os.File, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(f.Fd())) // #nosec G115 -- file descriptors fit in int.
	_, _ = fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
