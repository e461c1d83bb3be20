package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// HashQuestion produces a stable digest for answer-cache keys. The input is
// normalized so trivially different phrasings of the same question collide.
func HashQuestion(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum[:16])
}

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum[:16])
}
