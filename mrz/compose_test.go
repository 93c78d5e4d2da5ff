package mrz

import (
	"testing"
	"time"
)

func TestCheckDigitKnownVectors(t *testing.T) {
	cases := []struct {
		data []byte
		want byte
	}{
		{[]byte("L898902C3"), '6'},
		{[]byte("740812"), '2'},
		{[]byte("120415"), '9'},
	}
	for _, tc := range cases {
		got, err := CheckDigit(tc.data)
		if err != nil {
			t.Fatalf("CheckDigit(%s): %v", tc.data, err)
		}
		if got != tc.want {
			t.Fatalf("CheckDigit(%s) = %q, want %q", tc.data, got, tc.want)
		}
	}
}

func TestCharToIntMapping(t *testing.T) {
	cases := []struct {
		c    byte
		want int
	}{
		{'0', 0}, {'9', 9}, {'A', 10}, {'Z', 35}, {'<', 0},
	}
	for _, tc := range cases {
		got, err := CharToInt(tc.c)
		if err != nil {
			t.Fatalf("CharToInt(%q): %v", tc.c, err)
		}
		if got != tc.want {
			t.Fatalf("CharToInt(%q) = %d, want %d", tc.c, got, tc.want)
		}
	}
	if _, err := CharToInt('!'); err == nil {
		t.Fatal("expected an error for an invalid MRZ character")
	}
}

func TestExpiryYearBrackets(t *testing.T) {
	cases := []struct {
		birthYear, currentYear, want int
	}{
		{2000, 2020, 2025}, // age 20 -> +25
		{1990, 2020, 2030}, // age 30 -> +40
		{1974, 2020, 2034}, // age 46 -> +60
	}
	for _, tc := range cases {
		got, err := ExpiryYear(tc.birthYear, tc.currentYear)
		if err != nil {
			t.Fatalf("ExpiryYear(%d,%d): %v", tc.birthYear, tc.currentYear, err)
		}
		if got != tc.want {
			t.Fatalf("ExpiryYear(%d,%d) = %d, want %d", tc.birthYear, tc.currentYear, got, tc.want)
		}
	}
	if _, err := ExpiryYear(1950, 2020); err == nil {
		t.Fatal("expected an error for an age beyond every ICAO bracket")
	}
}

var documentNumber = [9]byte{'L', '8', '9', '8', '9', '0', '2', 'C', '3'}

func TestCandidatesSingleDay(t *testing.T) {
	search := BirthdateSearch{
		StartYear: 1974, EndYear: 1974,
		StartMonth: 8, EndMonth: 8,
		StartDay: 12, EndDay: 12,
	}
	candidates, err := Candidates(documentNumber, 2020, search)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	wantBirth := time.Date(1974, time.August, 12, 0, 0, 0, 0, time.UTC)
	if !c.BirthDate.Equal(wantBirth) {
		t.Fatalf("BirthDate = %v, want %v", c.BirthDate, wantBirth)
	}

	k := c.KeyInput
	if string(k[0:9]) != "L898902C3" {
		t.Fatalf("document number field = %q", k[0:9])
	}
	if k[9] != '6' {
		t.Fatalf("document number check digit = %q, want '6'", k[9])
	}
	if string(k[10:16]) != "740812" {
		t.Fatalf("birth date field = %q, want 740812", k[10:16])
	}
	if k[16] != '2' {
		t.Fatalf("birth date check digit = %q, want '2'", k[16])
	}
	if string(k[17:23]) != "340812" {
		t.Fatalf("expiry date field = %q, want 340812", k[17:23])
	}
	if k[23] != '4' {
		t.Fatalf("expiry date check digit = %q, want '4'", k[23])
	}
}

func TestCandidatesSkipsInvalidCalendarDates(t *testing.T) {
	search := BirthdateSearch{
		StartYear: 2021, EndYear: 2021, // not a leap year
		StartMonth: 2, EndMonth: 2,
		StartDay: 30, EndDay: 30,
	}
	candidates, err := Candidates(documentNumber, 2022, search)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("got %d candidates for Feb 30, want 0", len(candidates))
	}
}

func TestCandidatesSkipsUnreachableExpiryBracket(t *testing.T) {
	search := BirthdateSearch{
		StartYear: 1950, EndYear: 1950,
		StartMonth: 1, EndMonth: 1,
		StartDay: 1, EndDay: 1,
	}
	candidates, err := Candidates(documentNumber, 2020, search) // age 70, no bracket
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("got %d candidates for an unreachable expiry bracket, want 0", len(candidates))
	}
}

func TestCandidatesSpansFullRange(t *testing.T) {
	search := BirthdateSearch{
		StartYear: 1980, EndYear: 1980,
		StartMonth: 1, EndMonth: 1,
		StartDay: 1, EndDay: 3,
	}
	candidates, err := Candidates(documentNumber, 2020, search)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}
}
