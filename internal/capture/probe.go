package capture

import (
	"encoding/binary"
	"math"
	"time"
)

// ProbeDuration reads the movie header of an MP4 or QuickTime file. It
// returns false when the data is not an ISO base media file, the header
// cannot be found, or the duration does not fit a time.Duration.
func ProbeDuration(data []byte) (time.Duration, bool) {
	moov, ok := findBox(data, "moov")
	if !ok {
		return 0, false
	}
	mvhd, ok := findBox(moov, "mvhd")
	if !ok || len(mvhd) < 4 {
		return 0, false
	}

	var timescale, duration uint64
	switch version := mvhd[0]; version {
	case 0:
		// version+flags, creation, modification, timescale, duration
		if len(mvhd) < 20 {
			return 0, false
		}
		timescale = uint64(binary.BigEndian.Uint32(mvhd[12:16]))
		duration = uint64(binary.BigEndian.Uint32(mvhd[16:20]))
	case 1:
		if len(mvhd) < 32 {
			return 0, false
		}
		timescale = uint64(binary.BigEndian.Uint32(mvhd[20:24]))
		duration = binary.BigEndian.Uint64(mvhd[24:32])
	default:
		return 0, false
	}
	if timescale == 0 {
		return 0, false
	}

	secs := duration / timescale
	if secs >= math.MaxInt64/uint64(time.Second) {
		return 0, false
	}
	rem := duration % timescale
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(timescale), true
}

// findBox returns the payload of the first box of the given type at this
// level.
func findBox(data []byte, boxType string) ([]byte, bool) {
	for len(data) >= 8 {
		size := uint64(binary.BigEndian.Uint32(data[0:4]))
		typ := string(data[4:8])
		header := uint64(8)

		switch size {
		case 0:
			size = uint64(len(data))
		case 1:
			if len(data) < 16 {
				return nil, false
			}
			size = binary.BigEndian.Uint64(data[8:16])
			header = 16
		}
		if size < header || size > uint64(len(data)) {
			return nil, false
		}

		if typ == boxType {
			return data[header:size], true
		}
		data = data[size:]
	}
	return nil, false
}
