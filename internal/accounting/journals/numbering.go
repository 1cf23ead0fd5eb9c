package journals

import (
	"fmt"
	"strconv"
	"strings"
)

const numberPrefix = "JE"

// FormatNumber renders the display number for a yearly sequence value.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%s%d%03d", numberPrefix, year, seq)
}

// SequenceOf extracts the sequence part when number belongs to year.
func SequenceOf(number string, year int) (int, bool) {
	prefix := numberPrefix + strconv.Itoa(year)
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	rest := number[len(prefix):]
	if len(rest) < 3 {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// NextSequence returns one more than the highest sequence of year in numbers.
func NextSequence(numbers []string, year int) int {
	highest := 0
	for _, n := range numbers {
		if seq, ok := SequenceOf(n, year); ok && seq > highest {
			highest = seq
		}
	}
	return highest + 1
}
