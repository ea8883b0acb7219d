package climate

// leapYearDays is the month length table of a 366-day year.
var leapYearDays = [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// CumulativeDaysInMonths returns the running day count at the end of each
// month of a leap year: [31 60 91 ... 335 366]. February always has 29
// days; callers working with common years adjust from March onwards.
func CumulativeDaysInMonths() []int {
	cumulative := make([]int, 0, len(leapYearDays))
	total := 0
	for _, days := range leapYearDays {
		total += days
		cumulative = append(cumulative, total)
	}
	return cumulative
}
