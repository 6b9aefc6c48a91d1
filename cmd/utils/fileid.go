package utils

import (
	"fmt"
	"strings"
	"time"
)

type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Abbr string `json:"abbr"`
}

// Countries is the fixed set of dialing codes the onboarding flow accepts.
var Countries = []Country{
	{Code: "+961", Name: "Lebanon", Abbr: "LEB"},
	{Code: "+966", Name: "Saudi Arabia", Abbr: "SAU"},
	{Code: "+971", Name: "UAE", Abbr: "UAE"},
	{Code: "+33", Name: "France", Abbr: "FRA"},
	{Code: "+1", Name: "USA", Abbr: "USA"},
}

func CountryByCode(code string) (Country, bool) {
	for _, c := range Countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// GenerateFileID derives the patient's display handle from their name,
// dialing code and the given date: INITIALS-ABBR-Q{quarter}{month}-001.
// Empty names fall back to "XX" and unknown codes to "INT". Deterministic
// for a fixed date.
func GenerateFileID(name, countryCode string, now time.Time) string {
	var initials []rune
	for _, part := range strings.Fields(name) {
		r := []rune(part)[0]
		initials = append(initials, []rune(strings.ToUpper(string(r)))...)
		if len(initials) >= 2 {
			initials = initials[:2]
			break
		}
	}
	if len(initials) == 0 {
		initials = []rune("XX")
	}

	abbr := "INT"
	if c, ok := CountryByCode(countryCode); ok {
		abbr = c.Abbr
	}

	month := int(now.Month())
	quarter := (month + 2) / 3
	return fmt.Sprintf("%s-%s-Q%d%02d-001", string(initials), abbr, quarter, month)
}
