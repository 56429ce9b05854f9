package password

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"upsidedown/pkg/normalize"
)

// Load reads a line-delimited word list.
func Load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open password list: %w", err)
	}
	defer file.Close()

	tokens, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("read password list %s: %w", path, err)
	}

	return tokens, nil
}

// Parse reads one token per line. Tokens are folded the same way inbound text is, so a word
// list entry "Ahoj" matches a submission "#ahoj ...". Blank lines are skipped.
func Parse(r io.Reader) ([]string, error) {
	var tokens []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		token := strings.ReplaceAll(normalize.Alphanumeric(normalize.Normalize(scanner.Text())), " ", "")
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}
