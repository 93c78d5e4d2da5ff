package datagroup

import "fmt"

// EFCOM holds the LDS version, Unicode version, and data-group tag list
// declared by EF.COM (FID '011E').
type EFCOM struct {
	LDSVersion     string
	UnicodeVersion string
	DataGroupTags  []byte
}

// efComLDSVersionOffset and friends are relative to the start of the raw
// EF.COM file, which begins with a 5-byte outer header: tag '60', a
// one-byte length, tag '5F01' (LDS version), and a one-byte length.
const (
	efComLDSVersionOffset     = 5
	efComLDSVersionLen        = 4
	efComUnicodeVersionOffset = 12
	efComUnicodeVersionLen    = 6
	efComTagListLenOffset     = 19
	efComTagListOffset        = 20
)

// ParseEFCOM decodes a raw EF.COM file.
func ParseEFCOM(raw []byte) (*EFCOM, error) {
	if len(raw) < efComTagListOffset+1 {
		return nil, fmt.Errorf("EF.COM too short: %d bytes", len(raw))
	}

	tagListLen := int(raw[efComTagListLenOffset])
	if efComTagListOffset+tagListLen > len(raw) {
		return nil, fmt.Errorf("EF.COM tag list length %d exceeds file length", tagListLen)
	}

	return &EFCOM{
		LDSVersion:     string(raw[efComLDSVersionOffset : efComLDSVersionOffset+efComLDSVersionLen]),
		UnicodeVersion: string(raw[efComUnicodeVersionOffset : efComUnicodeVersionOffset+efComUnicodeVersionLen]),
		DataGroupTags:  append([]byte{}, raw[efComTagListOffset:efComTagListOffset+tagListLen]...),
	}, nil
}
