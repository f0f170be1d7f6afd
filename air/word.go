package air

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc8"
)

// wordSize is the size of one RawWord on the wire: two data bytes and a CRC.
const wordSize = 3

// RawWord is the 16-bit big-endian payload plus checksum that Sensirion
// chips use for commands arguments and responses.
type RawWord struct {
	Value uint16
	CRC   byte
}

// Valid reports whether the checksum matches the value.
func (w RawWord) Valid() bool {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], w.Value)
	return checkCRC(b[:]) == w.CRC
}

// parseWords splits a response into RawWords. The length must be a multiple
// of three.
func parseWords(buf []byte) ([]RawWord, error) {
	if len(buf)%wordSize != 0 {
		return nil, fmt.Errorf("response of %d bytes is not a sequence of words", len(buf))
	}
	words := make([]RawWord, 0, len(buf)/wordSize)
	for i := 0; i < len(buf); i += wordSize {
		words = append(words, RawWord{
			Value: binary.BigEndian.Uint16(buf[i : i+2]),
			CRC:   buf[i+2],
		})
	}
	return words, nil
}

// Sensirion CRC-8 (CRC-8/NRSC-5): polynomial 0x31 (x8 + x5 + x4 + 1), init
// 0xFF, no reflection. Shared by SCD30 and SGP30.
var sensirionTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/NRSC-5",
})

// Checksum returns the Sensirion CRC-8 of data.
func Checksum(data []byte) byte {
	return crc8.Checksum(data, sensirionTable)
}

func checkCRC(data []byte) byte {
	return Checksum(data)
}
