package ring

import "encoding/binary"

// DecodeAll decodes as many complete length-prefixed records as fit
// entirely within snapshot, returning their payloads in order and the
// byte offset (relative to the start of snapshot) of the end of the
// last fully decoded record — the "high-water mark" the caller should
// advance the ring tail by. A trailing partial header or partial
// payload is left undecoded and excluded from the high-water mark.
func DecodeAll(snapshot []byte) (payloads [][]byte, highWater uint64) {
	var offset int
	for {
		if offset+headerSize > len(snapshot) {
			break
		}
		length := int(binary.LittleEndian.Uint32(snapshot[offset : offset+headerSize]))
		recordEnd := offset + headerSize + length
		if recordEnd > len(snapshot) {
			break
		}
		payload := make([]byte, length)
		copy(payload, snapshot[offset+headerSize:recordEnd])
		payloads = append(payloads, payload)
		offset = recordEnd
	}
	return payloads, uint64(offset)
}

// Encode frames a single payload as a standalone record, for callers
// writing directly to a sidecar file rather than the ring (the archive's
// fallback path reuses the same framing rules).
func Encode(payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(out[:headerSize], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}
