package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// stdioConsentUI is the CLI's cloudkit.ConsentUI: it prints the authorize
// URL to stderr (stdout is reserved for command output) and blocks on
// stdin for the code the user pastes back after consenting in a browser.
type stdioConsentUI struct{}

func (stdioConsentUI) Show(ctx context.Context, authorizeURL string) (string, error) {
	fmt.Fprintln(os.Stderr, "Open this URL in a browser and authorize access:")
	fmt.Fprintln(os.Stderr, "  "+authorizeURL)
	fmt.Fprint(os.Stderr, "Paste the resulting code: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read authorization code: %w", err)
		}
		return "", fmt.Errorf("read authorization code: no input")
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return "", fmt.Errorf("empty authorization code")
	}
	return code, nil
}
