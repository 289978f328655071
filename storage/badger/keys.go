package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/poiesic/vectorit/core"
)

// Key prefixes for different data types
const (
	taskPrefix      = "task:"
	taskOrderPrefix = "tq:"
	taskOrderRef    = "tqr:"
	taskOrderSeq    = "tqseq"
	vectorPrefix    = "vec:"
)

// makeTaskKey generates a key for a task record by ID.
func makeTaskKey(id string) []byte {
	return []byte(taskPrefix + id)
}

// makeTaskOrderKey generates a key in the dequeue order index.
// Format: prefix:inverted priority:sequence
// Higher priorities sort first; the sequence keeps FIFO order within a priority.
func makeTaskOrderKey(p core.Priority, seq uint64) []byte {
	buf := make([]byte, len(taskOrderPrefix)+1+8)
	offset := copy(buf, taskOrderPrefix)
	buf[offset] = byte(core.MaxPriority - p)
	offset++
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeTaskOrderRefKey generates the key pointing from a task to its order key.
func makeTaskOrderRefKey(id string) []byte {
	return []byte(taskOrderRef + id)
}

// makeFilePrefix generates the prefix shared by all vectors of a file.
// Format: prefix:fileKey\x00
func makeFilePrefix(fileKey string) []byte {
	buf := make([]byte, 0, len(vectorPrefix)+len(fileKey)+1)
	buf = append(buf, vectorPrefix...)
	buf = append(buf, fileKey...)
	return append(buf, 0)
}

// makeVectorKey generates a key for one chunk of a file.
// Format: prefix:fileKey\x00chunkIndex
func makeVectorKey(fileKey string, chunkIndex int) []byte {
	buf := makeFilePrefix(fileKey)
	return binary.BigEndian.AppendUint64(buf, uint64(chunkIndex))
}

// parseVectorKey extracts the file key from a vector key.
func parseVectorKey(key []byte) (string, bool) {
	rest, ok := bytes.CutPrefix(key, []byte(vectorPrefix))
	if !ok {
		return "", false
	}
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", false
	}
	return string(rest[:i]), true
}
