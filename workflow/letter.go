package workflow

import (
	"fmt"
	"strings"
	"time"
)

const DefaultLetterPrefix = "LOAN"

// LetterPeriod is the counter key of t: "YYYY-MM".
func LetterPeriod(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// FormatLetterNumber renders PREFIX/YYYY/MM/NNNN. Numbers of one prefix sort
// lexicographically by issue order while the sequence stays below 10000.
func FormatLetterNumber(prefix string, t time.Time, seq int) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultLetterPrefix
	}
	return fmt.Sprintf("%s/%04d/%02d/%04d", prefix, t.Year(), int(t.Month()), seq)
}
