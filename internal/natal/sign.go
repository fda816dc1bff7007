// Package natal derives the chart facts that follow from the birth date alone.
// Planet and house positions are left to the interpretation.
package natal

import "time"

// Sign is a tropical zodiac sign.
type Sign struct {
	Name     string
	Element  string
	Modality string
}

var (
	aries       = Sign{Name: "Aries", Element: "fire", Modality: "cardinal"}
	taurus      = Sign{Name: "Taurus", Element: "earth", Modality: "fixed"}
	gemini      = Sign{Name: "Gemini", Element: "air", Modality: "mutable"}
	cancer      = Sign{Name: "Cancer", Element: "water", Modality: "cardinal"}
	leo         = Sign{Name: "Leo", Element: "fire", Modality: "fixed"}
	virgo       = Sign{Name: "Virgo", Element: "earth", Modality: "mutable"}
	libra       = Sign{Name: "Libra", Element: "air", Modality: "cardinal"}
	scorpio     = Sign{Name: "Scorpio", Element: "water", Modality: "fixed"}
	sagittarius = Sign{Name: "Sagittarius", Element: "fire", Modality: "mutable"}
	capricorn   = Sign{Name: "Capricorn", Element: "earth", Modality: "cardinal"}
	aquarius    = Sign{Name: "Aquarius", Element: "air", Modality: "fixed"}
	pisces      = Sign{Name: "Pisces", Element: "water", Modality: "mutable"}
)

// ingresses are the usual Sun ingress dates in calendar order.
var ingresses = []struct {
	month time.Month
	day   int
	sign  Sign
}{
	{time.January, 20, aquarius},
	{time.February, 19, pisces},
	{time.March, 21, aries},
	{time.April, 20, taurus},
	{time.May, 21, gemini},
	{time.June, 21, cancer},
	{time.July, 23, leo},
	{time.August, 23, virgo},
	{time.September, 23, libra},
	{time.October, 23, scorpio},
	{time.November, 22, sagittarius},
	{time.December, 22, capricorn},
}

// SunSign returns the sign the Sun occupied on birth. Days on a cusp follow
// the common ingress table.
func SunSign(birth time.Time) Sign {
	month, day := birth.Month(), birth.Day()
	sign := capricorn
	for _, in := range ingresses {
		if month > in.month || (month == in.month && day >= in.day) {
			sign = in.sign
		}
	}
	return sign
}
