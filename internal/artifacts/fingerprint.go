package artifacts

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/trendlens/trendlens-go/internal/models"
)

// Fingerprint produces a deterministic hash of an aligned frame's window
// bounds and contents. Two runs over byte-identical inputs fingerprint
// identically, which is what skip-if-unchanged keys on.
func Fingerprint(frame *models.AlignedFrame) string {
	h := sha256.New()

	writeInt64 := func(v int64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeFloat := func(v float64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	writeInt64(frame.Start.UnixNano())
	writeInt64(frame.End.UnixNano())
	writeInt64(int64(frame.Interval / time.Nanosecond))

	// Names is sorted by the aligner, so iteration order is stable.
	for _, name := range frame.Names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		for _, cell := range frame.Columns[name] {
			if cell.Valid {
				h.Write([]byte{1})
				writeFloat(cell.Float64)
			} else {
				h.Write([]byte{0})
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
