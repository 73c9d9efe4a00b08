package rubric

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// TotalPoints is the exact sum every enforced score column adds up to.
const TotalPoints = 100

// MaxScore caps a single parsed score so sums and rescaling stay finite.
const MaxScore = 1e9

var (
	// TypeKeywords locate the question-type column.
	TypeKeywords = []string{"題型", "type"}
	// ScoreKeywords locate the point-value column.
	ScoreKeywords = []string{"配分", "score", "points"}

	typeSeparators = []string{",", "或", "、"}
	numberPattern  = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+)`)
)

// Apportion selects how rounding leftovers are redistributed.
type Apportion int

const (
	// RemainderToMax adds the whole rounding remainder to the first row
	// holding the largest rounded value.
	RemainderToMax Apportion = iota
	// LargestRemainder floors every share and hands the missing points, one
	// each, to the rows with the largest fractional parts.
	LargestRemainder
)

// ParseApportion maps a config string to an Apportion. Unknown names fall back
// to RemainderToMax.
func ParseApportion(s string) Apportion {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "largest-remainder", "largest_remainder", "hamilton":
		return LargestRemainder
	default:
		return RemainderToMax
	}
}

func (a Apportion) String() string {
	if a == LargestRemainder {
		return "largest-remainder"
	}
	return "remainder-to-max"
}

// Enforcer applies the single-type and 100-point rules.
type Enforcer struct {
	Apportion Apportion
}

// Enforce applies the rules with the default RemainderToMax policy.
func Enforce(rs *RecordSet) *RecordSet {
	return Enforcer{}.Enforce(rs)
}

// Enforce returns a copy of rs where the type column holds one type per row
// and the score column holds non-negative integers summing to TotalPoints.
// Missing columns leave the corresponding rule unapplied. rs is not modified.
func (e Enforcer) Enforce(rs *RecordSet) *RecordSet {
	out := rs.Clone()
	if out == nil {
		return nil
	}

	if col := out.ColumnIndex(TypeKeywords...); col >= 0 {
		for _, row := range out.Rows {
			row[col] = SingleType(row[col])
		}
	}

	if col := out.ColumnIndex(ScoreKeywords...); col >= 0 && len(out.Rows) > 0 {
		values := make([]float64, len(out.Rows))
		for i, row := range out.Rows {
			values[i] = ParseScore(row[col])
		}
		for i, p := range e.apportion(values) {
			out.Rows[i][col] = strconv.Itoa(p)
		}
	}

	return out
}

// SingleType strips whitespace from a type cell and keeps only the text before
// the first list separator.
func SingleType(cell string) string {
	t := strings.Join(strings.Fields(cell), "")
	cut := len(t)
	for _, sep := range typeSeparators {
		if i := strings.Index(t, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return t[:cut]
}

// ParseScore returns the first number found in cell. Full-width digits are
// accepted. Cells without a number, and negative numbers, count as 0; values
// above MaxScore count as MaxScore.
func ParseScore(cell string) float64 {
	m := numberPattern.FindString(width.Narrow.String(cell))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil && !math.IsInf(v, 1) {
		return 0
	}
	if v < 0 {
		return 0
	}
	return math.Min(v, MaxScore)
}

// Total sums the score column of rs as enforced integers would be read back.
// It returns false when rs has no score column.
func Total(rs *RecordSet) (int, bool) {
	col := rs.ColumnIndex(ScoreKeywords...)
	if col < 0 {
		return 0, false
	}
	var sum float64
	for _, row := range rs.Rows {
		sum += ParseScore(row[col])
	}
	return int(math.Round(sum)), true
}

func (e Enforcer) apportion(values []float64) []int {
	var total float64
	for _, v := range values {
		total += v
	}

	// Nothing to weigh: the first row carries the whole score.
	if total == 0 {
		points := make([]int, len(values))
		points[0] = TotalPoints
		return points
	}

	scaled := values
	if total != TotalPoints {
		scaled = make([]float64, len(values))
		for i, v := range values {
			scaled[i] = v / total * TotalPoints
		}
	}

	if e.Apportion == LargestRemainder {
		return largestRemainder(scaled)
	}
	return remainderToMax(scaled)
}

// remainderToMax rounds half away from zero, then settles the difference on
// the first maximum. If that would push the maximum below zero the excess is
// removed one point at a time from whichever row is currently largest.
func remainderToMax(values []float64) []int {
	points := make([]int, len(values))
	sum := 0
	for i, v := range values {
		points[i] = int(math.Round(v))
		sum += points[i]
	}

	remainder := TotalPoints - sum
	if remainder == 0 {
		return points
	}
	if i := argmax(points); points[i]+remainder >= 0 {
		points[i] += remainder
		return points
	}
	for ; remainder < 0; remainder++ {
		points[argmax(points)]--
	}
	return points
}

func largestRemainder(values []float64) []int {
	points := make([]int, len(values))
	order := make([]int, len(values))
	sum := 0
	for i, v := range values {
		points[i] = int(math.Floor(v))
		sum += points[i]
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		fa := values[order[a]] - math.Floor(values[order[a]])
		fb := values[order[b]] - math.Floor(values[order[b]])
		return fa > fb
	})
	for k := 0; sum < TotalPoints; k++ {
		points[order[k%len(order)]]++
		sum++
	}
	return points
}

func argmax(points []int) int {
	best := 0
	for i, p := range points {
		if p > points[best] {
			best = i
		}
	}
	return best
}
