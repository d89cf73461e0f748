// Command keyenc obfuscates an API key for storage in env files. The output
// carries the secrets prefix so the server decodes it transparently when
// STUDIO_SECRET_KEY is set.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/oclite/studio/internal/secrets"
)

func main() {
	var (
		valueFlag string
		keyFlag   string
	)
	flag.StringVar(&valueFlag, "value", "", "plaintext value to obfuscate (falls back to stdin)")
	flag.StringVar(&keyFlag, "key", "", "obfuscation key (falls back to STUDIO_SECRET_KEY)")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("STUDIO_SECRET_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "obfuscation key is required via -key or STUDIO_SECRET_KEY")
		os.Exit(1)
	}

	value := strings.TrimSpace(valueFlag)
	if value == "" {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			fmt.Fprintln(os.Stderr, "value is required via -value or stdin")
			os.Exit(1)
		}
		value = strings.TrimSpace(line)
	}

	encoded, err := secrets.Encode(value, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode value: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(encoded)
}
