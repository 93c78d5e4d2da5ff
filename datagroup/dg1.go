package datagroup

import (
	"fmt"
	"strings"
)

// MRZRecord holds the fixed-offset fields extracted from DG1.
type MRZRecord struct {
	DocumentCode   string
	IssuingState   string
	DocumentNumber string
	DateOfBirth    string
	Sex            string
	DateOfExpiry   string
	Nationality    string
	HolderName     string
}

// td1 layout: 5-byte outer header ('61' L '5F1F' L) followed by a 90-byte,
// 3-line MRZ. td3 layout: same header style followed by an 88-byte, 2-line
// MRZ. Offsets below are relative to the start of the raw DG1 file.
const (
	td1HeaderLen    = 5
	td1DocCode      = td1HeaderLen + 0
	td1IssuingState = td1HeaderLen + 2
	td1DocNumber    = td1HeaderLen + 5
	td1OptionalData = td1HeaderLen + 15
	td1DOB          = td1HeaderLen + 30
	td1Sex          = td1HeaderLen + 37
	td1Expiry       = td1HeaderLen + 38
	td1Nationality  = td1HeaderLen + 45
	td1Name         = td1HeaderLen + 60
	td1TotalLen     = td1HeaderLen + 90

	td3HeaderLen    = 5
	td3DocCode      = td3HeaderLen + 0
	td3Name         = td3HeaderLen + 5
	td3DocNumber    = td3HeaderLen + 44
	td3Nationality  = td3HeaderLen + 54
	td3DOB          = td3HeaderLen + 57
	td3Sex          = td3HeaderLen + 64
	td3Expiry       = td3HeaderLen + 65
	td3TotalLen     = td3HeaderLen + 88
)

// ParseDG1 decodes a raw DG1 file into its MRZ fields. The document code's
// first character selects the MRZ layout: 'P' for TD3 (passport, 2 lines of
// 44), anything else for TD1 (ID card, 3 lines of 30).
func ParseDG1(raw []byte) (*MRZRecord, error) {
	if len(raw) < td1HeaderLen+2 {
		return nil, fmt.Errorf("DG1 too short: %d bytes", len(raw))
	}
	docCode := string(raw[td1DocCode : td1DocCode+2])

	if strings.HasPrefix(docCode, "P") {
		return parseTD3(raw)
	}
	return parseTD1(raw)
}

func parseTD1(raw []byte) (*MRZRecord, error) {
	if len(raw) < td1TotalLen {
		return nil, fmt.Errorf("DG1 too short for TD1 layout: %d bytes, need %d", len(raw), td1TotalLen)
	}
	return &MRZRecord{
		DocumentCode:   trimFiller(raw[td1DocCode : td1DocCode+2]),
		IssuingState:   trimFiller(raw[td1IssuingState : td1IssuingState+3]),
		DocumentNumber: trimFiller(raw[td1DocNumber : td1DocNumber+9]),
		DateOfBirth:    string(raw[td1DOB : td1DOB+6]),
		Sex:            string(raw[td1Sex : td1Sex+1]),
		DateOfExpiry:   string(raw[td1Expiry : td1Expiry+6]),
		Nationality:    trimFiller(raw[td1Nationality : td1Nationality+3]),
		HolderName:     trimFiller(raw[td1Name : td1Name+30]),
	}, nil
}

func parseTD3(raw []byte) (*MRZRecord, error) {
	if len(raw) < td3TotalLen {
		return nil, fmt.Errorf("DG1 too short for TD3 layout: %d bytes, need %d", len(raw), td3TotalLen)
	}
	return &MRZRecord{
		DocumentCode:   trimFiller(raw[td3DocCode : td3DocCode+2]),
		IssuingState:   trimFiller(raw[td3DocCode+2 : td3DocCode+5]),
		DocumentNumber: trimFiller(raw[td3DocNumber : td3DocNumber+9]),
		DateOfBirth:    string(raw[td3DOB : td3DOB+6]),
		Sex:            string(raw[td3Sex : td3Sex+1]),
		DateOfExpiry:   string(raw[td3Expiry : td3Expiry+6]),
		Nationality:    trimFiller(raw[td3Nationality : td3Nationality+3]),
		HolderName:     trimFiller(raw[td3Name : td3Name+39]),
	}, nil
}

// trimFiller strips MRZ filler characters ('<') from the edges and collapses
// internal runs to single spaces, for a holder-readable string.
func trimFiller(b []byte) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(string(b), "<", " ")), " ")
}
