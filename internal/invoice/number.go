package invoice

import (
	"fmt"
	"time"
)

var romanMonths = [12]string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII"}

// RomanMonth returns the month of t as a roman numeral.
func RomanMonth(t time.Time) string {
	return romanMonths[t.Month()-1]
}

// FormatNumber renders "{seq:3}/SPPI/HO-TGR/{roman month}/{year}". The
// sequence resets every calendar year; the month is informational only.
func FormatNumber(seq int, issued time.Time) string {
	return fmt.Sprintf("%03d/SPPI/HO-TGR/%s/%d", seq, RomanMonth(issued), issued.Year())
}
