// Package checksum frames payloads with a CRC32 trailer.
package checksum

import (
	"encoding/binary"
	"hash/crc32"
)

// Size is the length of the trailer appended by Seal.
const Size = 4

type CRC32 struct {
	table *crc32.Table
}

func NewCRC32IEEE() *CRC32 {
	return &CRC32{table: crc32.IEEETable}
}

func NewCRC32Castagnoli() *CRC32 {
	return &CRC32{table: crc32.MakeTable(crc32.Castagnoli)}
}

func (c *CRC32) Calculate(data []byte) uint32 {
	return crc32.Checksum(data, c.table)
}

func (c *CRC32) Verify(data []byte, expected uint32) bool {
	return c.Calculate(data) == expected
}

// Seal appends the little-endian checksum of payload to it.
func (c *CRC32) Seal(payload []byte) []byte {
	return binary.LittleEndian.AppendUint32(payload, c.Calculate(payload))
}

// Open strips and verifies the trailer added by Seal. ok is false when buf is too
// short or the checksum does not match.
func (c *CRC32) Open(buf []byte) (payload []byte, ok bool) {
	if len(buf) < Size {
		return nil, false
	}

	payload, trailer := buf[:len(buf)-Size], buf[len(buf)-Size:]
	if !c.Verify(payload, binary.LittleEndian.Uint32(trailer)) {
		return nil, false
	}
	return payload, true
}
