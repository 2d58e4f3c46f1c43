package session

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// EntropyBits estimates the guessable bits in a token from the character
// classes it uses and the length of the part that varies between samples.
func EntropyBits(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	size := alphabetSize(values)
	if size < 2 {
		return 0
	}
	minLen := len(values[0])
	for _, v := range values[1:] {
		minLen = min(minLen, len(v))
	}
	varying := minLen
	if len(values) > 1 {
		varying -= commonPrefix(values) + commonSuffix(values)
	}
	if varying < 0 {
		varying = 0
	}
	return float64(varying) * math.Log2(float64(size))
}

func alphabetSize(values []string) int {
	var digit, lower, upper, hexOnly = false, false, false, true
	other := map[rune]bool{}
	for _, v := range values {
		for _, r := range v {
			switch {
			case r >= '0' && r <= '9':
				digit = true
			case r >= 'a' && r <= 'z':
				lower = true
				if r > 'f' {
					hexOnly = false
				}
			case r >= 'A' && r <= 'Z':
				upper = true
				if r > 'F' {
					hexOnly = false
				}
			default:
				other[r] = true
			}
		}
	}
	if hexOnly && len(other) == 0 && !(lower && upper) && (lower || upper) {
		return 16
	}
	size := len(other)
	if digit {
		size += 10
	}
	if lower {
		size += 26
	}
	if upper {
		size += 26
	}
	return size
}

func commonPrefix(values []string) int {
	n := len(values[0])
	for _, v := range values[1:] {
		i := 0
		for i < n && i < len(v) && v[i] == values[0][i] {
			i++
		}
		n = i
	}
	return n
}

func commonSuffix(values []string) int {
	first := values[0]
	n := len(first)
	for _, v := range values[1:] {
		i := 0
		for i < n && i < len(v) && v[len(v)-1-i] == first[len(first)-1-i] {
			i++
		}
		n = i
	}
	return n
}

var trailingNumber = regexp.MustCompile(`^(.*?)(\d{1,18})$`)

// PredictableSequence reports tokens that repeat, count up by a constant
// step, or differ only in a short tail.
func PredictableSequence(values []string) (string, bool) {
	if len(values) < 2 {
		return "", false
	}
	if allEqual(values) {
		return "static value", true
	}
	if step, ok := constantStep(values); ok {
		return fmt.Sprintf("constant increment of %d", step), true
	}
	minLen := len(values[0])
	for _, v := range values[1:] {
		minLen = min(minLen, len(v))
	}
	if p := commonPrefix(values); minLen > 0 && p*4 >= minLen*3 && minLen-p <= 4 {
		return fmt.Sprintf("shared prefix of %d characters", p), true
	}
	return "", false
}

func allEqual(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func constantStep(values []string) (int64, bool) {
	var prefix string
	nums := make([]int64, len(values))
	for i, v := range values {
		m := trailingNumber.FindStringSubmatch(v)
		if m == nil {
			return 0, false
		}
		if i == 0 {
			prefix = m[1]
		} else if !strings.EqualFold(prefix, m[1]) {
			return 0, false
		}
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, false
		}
		nums[i] = n
	}
	step := nums[1] - nums[0]
	if step == 0 {
		return 0, false
	}
	for i := 2; i < len(nums); i++ {
		if nums[i]-nums[i-1] != step {
			return 0, false
		}
	}
	return step, true
}
