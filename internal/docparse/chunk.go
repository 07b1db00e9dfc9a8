package docparse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Chunk splits text into consecutive pieces of at most size runes.
func Chunk(text string, size int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Head returns the first n runes of text.
func Head(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// JoinChunks labels the first max chunks with label(i) (1-based) and joins
// them one per line.
func JoinChunks(chunks []string, max int, label func(i int) string) string {
	if max > 0 && len(chunks) > max {
		chunks = chunks[:max]
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("%s: %s", label(i+1), c)
	}
	return strings.Join(parts, "\n")
}

// SizeKB formats a byte count as kilobytes rounded to two decimals,
// always keeping at least one decimal place (e.g. "1.0", "12.35").
func SizeKB(n int) string {
	kb := math.Round(float64(n)/1024*100) / 100
	s := strconv.FormatFloat(kb, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
