package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateFileID(t *testing.T) {
	march := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	january := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)
	december := time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		full    string
		country string
		now     time.Time
		want    string
	}{
		{"two word name", "Jad Khoury", "+961", march, "JK-LEB-Q103-001"},
		{"single word takes first letter only", "Madonna", "+33", january, "M-FRA-Q101-001"},
		{"extra words ignored past two initials", "Anna Maria Grace Lee", "+1", march, "AM-USA-Q103-001"},
		{"empty name falls back", "", "+961", march, "XX-LEB-Q103-001"},
		{"whitespace only falls back", "   ", "+966", january, "XX-SAU-Q101-001"},
		{"unknown dialing code", "Jad Khoury", "+49", march, "JK-INT-Q103-001"},
		{"lowercase name is uppercased", "jad khoury", "+971", december, "JK-UAE-Q412-001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateFileID(tt.full, tt.country, tt.now))
		})
	}
}

func TestGenerateFileIDDeterministic(t *testing.T) {
	now := time.Date(2025, time.July, 4, 12, 30, 0, 0, time.UTC)
	first := GenerateFileID("Nour Haddad", "+961", now)
	second := GenerateFileID("Nour Haddad", "+961", now)
	assert.Equal(t, first, second)
	assert.Equal(t, "NH-LEB-Q307-001", first)
}

func TestGenerateFileIDArabicName(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	got := GenerateFileID("نور حداد", "+961", now)
	assert.Equal(t, "نح-LEB-Q103-001", got)
}

func TestCountryByCode(t *testing.T) {
	c, ok := CountryByCode("+961")
	assert.True(t, ok)
	assert.Equal(t, "Lebanon", c.Name)
	assert.Equal(t, "LEB", c.Abbr)

	_, ok = CountryByCode("+49")
	assert.False(t, ok)
}
