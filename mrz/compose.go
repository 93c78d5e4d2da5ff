// Package mrz composes candidate Basic Access Control MRZ key-inputs when
// the full machine-readable zone is unavailable, given only a document
// number and a range of candidate birth dates.
package mrz

import (
	"fmt"
	"time"
)

// checkDigitWeights is the repeating ICAO 9303 check-digit weight sequence.
var checkDigitWeights = [3]int{7, 3, 1}

// CharToInt maps one MRZ character to its ICAO check-digit numeric value:
// '0'-'9' to 0-9, 'A'-'Z' to 10-35, '<' to 0.
func CharToInt(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, nil
	case c == '<':
		return 0, nil
	default:
		return 0, fmt.Errorf("mrz: invalid character %q", c)
	}
}

// CheckDigit computes the ICAO 9303 check digit over data, using the
// repeating weight sequence 7, 3, 1.
func CheckDigit(data []byte) (byte, error) {
	sum := 0
	for i, c := range data {
		v, err := CharToInt(c)
		if err != nil {
			return 0, err
		}
		sum += v * checkDigitWeights[i%3]
	}
	return byte('0' + sum%10), nil
}

// expiryBracketError marks a holder age outside every ICAO age bracket, so
// callers scanning a range of birth dates can tell it apart from a genuine
// composition failure and simply skip the candidate.
type expiryBracketError struct{ age int }

func (e expiryBracketError) Error() string {
	return fmt.Sprintf("mrz: no plausible expiry bracket for holder age %d", e.age)
}

// ExpiryYear derives a plausible document expiry year from a birth year and
// the current year, using ICAO's holder-age brackets: age <= 25 adds 25
// years, <= 40 adds 40, <= 60 adds 60. Ages beyond that bracket set have no
// plausible default and are rejected.
func ExpiryYear(birthYear, currentYear int) (int, error) {
	age := currentYear - birthYear
	switch {
	case age <= 25:
		return birthYear + 25, nil
	case age <= 40:
		return birthYear + 40, nil
	case age <= 60:
		return birthYear + 60, nil
	default:
		return 0, expiryBracketError{age: age}
	}
}

// BirthdateSearch describes an inclusive range of candidate birth dates to
// try: every (year, month, day) combination within the given bounds.
type BirthdateSearch struct {
	StartYear, EndYear   int
	StartMonth, EndMonth int
	StartDay, EndDay     int
}

// Candidate is one composed 24-byte MRZ key-input together with the
// birth date it was derived from, for the orchestrator to retry BAC with.
type Candidate struct {
	BirthDate time.Time
	KeyInput  [24]byte
}

// Candidates builds one MRZ key-input per (year, month, day) combination in
// search, for the given document number and current year used to derive a
// plausible expiry year.
func Candidates(documentNumber [9]byte, currentYear int, search BirthdateSearch) ([]Candidate, error) {
	var out []Candidate
	for year := search.StartYear; year <= search.EndYear; year++ {
		for month := search.StartMonth; month <= search.EndMonth; month++ {
			for day := search.StartDay; day <= search.EndDay; day++ {
				date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
				if date.Month() != time.Month(month) {
					continue // invalid calendar date (e.g. Feb 30)
				}
				c, err := compose(documentNumber, date, currentYear)
				if err != nil {
					if _, ok := err.(expiryBracketError); ok {
						continue // this birth year has no plausible expiry bracket
					}
					return nil, err
				}
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func compose(documentNumber [9]byte, birthDate time.Time, currentYear int) (Candidate, error) {
	var keyInput [24]byte

	copy(keyInput[0:9], documentNumber[:])
	docCheck, err := CheckDigit(documentNumber[:])
	if err != nil {
		return Candidate{}, err
	}
	keyInput[9] = docCheck

	birthField := birthDateField(birthDate)
	copy(keyInput[10:16], birthField[:])
	birthCheck, err := CheckDigit(birthField[:])
	if err != nil {
		return Candidate{}, err
	}
	keyInput[16] = birthCheck

	expiryYear, err := ExpiryYear(birthDate.Year(), currentYear)
	if err != nil {
		return Candidate{}, err
	}
	expiryField := dateField(expiryYear, int(birthDate.Month()), birthDate.Day())
	copy(keyInput[17:23], expiryField[:])
	expiryCheck, err := CheckDigit(expiryField[:])
	if err != nil {
		return Candidate{}, err
	}
	keyInput[23] = expiryCheck

	return Candidate{BirthDate: birthDate, KeyInput: keyInput}, nil
}

func birthDateField(d time.Time) [6]byte {
	return dateField(d.Year(), int(d.Month()), d.Day())
}

func dateField(year, month, day int) [6]byte {
	var f [6]byte
	y := year % 100
	f[0] = byte('0' + y/10)
	f[1] = byte('0' + y%10)
	f[2] = byte('0' + month/10)
	f[3] = byte('0' + month%10)
	f[4] = byte('0' + day/10)
	f[5] = byte('0' + day%10)
	return f
}
