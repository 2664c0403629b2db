package handover

import "time"

// Evidence limits per item.
const (
	MaxMediaSize     = 50 * 1024 * 1024 // 50 MiB
	MaxPhotosPerItem = 5
	MaxVideosPerItem = 1
	MaxVideoDuration = 120 * time.Second
)

// Candidate describes media proposed for attachment before any bytes are
// stored.
type Candidate struct {
	Kind MediaKind
	Size int64

	// Duration is the video length. Zero means it could not be determined,
	// in which case the duration rule is skipped.
	Duration time.Duration
}

// ValidateAttachment decides whether the candidate may be added to item.
// Rules are checked in order and the first failure is returned.
func ValidateAttachment(item Item, c Candidate) error {
	return validateCandidate(CountMedia(item.Media), c, true)
}

// ValidateUpload is the server-side check run before storing bytes. It
// applies the kind, size, and count rules against every stored media record
// for the item, whatever its upload status. A failed upload never frees a
// slot. Duration is not checked.
func ValidateUpload(existing []*MediaAttachment, c Candidate) error {
	var counts MediaCounts
	for _, m := range existing {
		switch m.Kind {
		case MediaPhoto:
			counts.Photos++
		case MediaVideo:
			counts.Videos++
		}
	}
	return validateCandidate(counts, c, false)
}

func validateCandidate(counts MediaCounts, c Candidate, checkDuration bool) error {
	if c.Kind != MediaPhoto && c.Kind != MediaVideo {
		return Errorf(EINVALIDFILETYPE, "Only photos and videos can be attached")
	}
	if c.Size > MaxMediaSize {
		return Errorf(EFILETOOLARGE, "File exceeds the 50 MB limit")
	}
	switch c.Kind {
	case MediaPhoto:
		if counts.Photos >= MaxPhotosPerItem {
			return Errorf(EPHOTOLIMIT, "An item can have at most %d photos", MaxPhotosPerItem)
		}
	case MediaVideo:
		if counts.Videos >= MaxVideosPerItem {
			return Errorf(EVIDEOLIMIT, "An item can have only one video")
		}
		if checkDuration && c.Duration > MaxVideoDuration {
			return Errorf(EVIDEOTOOLONG, "Videos can be at most %d seconds long", int(MaxVideoDuration.Seconds()))
		}
	}
	return nil
}

// EvidenceRequired flags a failed item that has no media yet.
func EvidenceRequired(item Item) bool {
	return item.Status == ItemFailed && len(item.Media) == 0
}
