package idchip

import "idchip_reader/datagroup"

// DocumentRecord is the decoded result of a successful chip read: the
// EF.COM file-list header, the MRZ fields from DG1, and whether a facial
// image was produced from DG2.
type DocumentRecord struct {
	EFCOM         *datagroup.EFCOM
	MRZ           *datagroup.MRZRecord
	FaceImageRead bool
}
