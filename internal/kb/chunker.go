package kb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig marks chunking or search parameters that cannot produce
// a valid result.
var ErrInvalidConfig = errors.New("invalid configuration")

// SplitTokens splits text into whitespace-token windows of at most size
// tokens, with consecutive windows sharing overlap tokens. The final window
// may be shorter. Every token of the input appears in at least one chunk.
func SplitTokens(text string, size, overlap int) ([]string, error) {
	if err := ValidateChunking(size, overlap); err != nil {
		return nil, err
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) <= size {
		return []string{strings.Join(tokens, " ")}, nil
	}

	advance := size - overlap
	var chunks []string
	for start := 0; ; start += advance {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// ValidateChunking checks that a window size and overlap can make progress.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, overlap, size)
	}
	return nil
}

// CountTokens returns the whitespace token count of text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
