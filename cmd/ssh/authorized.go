package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	gossh "golang.org/x/crypto/ssh"
)

// authorizedFingerprints resolves SSH_AUTHORIZED_KEYS. The value is either a
// path to an authorized_keys file or a comma separated list of SHA256
// fingerprints and inline public keys.
func authorizedFingerprints(value string) (map[string]bool, error) {
	value = strings.TrimSpace(value)
	out := make(map[string]bool)
	if value == "" {
		return out, nil
	}

	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("read authorized keys: %w", err)
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := addKey(out, line); err != nil {
				return nil, err
			}
		}
		return out, scanner.Err()
	}

	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "SHA256:") {
			out[entry] = true
			continue
		}
		if err := addKey(out, entry); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func addKey(out map[string]bool, line string) error {
	key, _, _, _, err := gossh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return fmt.Errorf("parse authorized key %q: %w", truncateKey(line), err)
	}
	out[gossh.FingerprintSHA256(key)] = true
	return nil
}

func truncateKey(s string) string {
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}
