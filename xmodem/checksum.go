package xmodem

import "github.com/sigurn/crc16"

// Mode is the block validation mode. It is requested by the receiver
// during the handshake and fixed for the rest of the session.
type Mode int

const (
	// ModeChecksum validates blocks with an 8-bit arithmetic sum.
	// Requested by sending NAK.
	ModeChecksum Mode = iota

	// ModeCRC16 validates blocks with CRC-16/XMODEM.
	// Requested by sending 'C'.
	ModeCRC16
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

func (m Mode) String() string {
	switch m {
	case ModeChecksum:
		return "checksum"
	case ModeCRC16:
		return "crc16"
	default:
		return "unknown"
	}
}

// ValidatorLen returns the number of validator bytes trailing a block.
func (m Mode) ValidatorLen() int {
	if m == ModeCRC16 {
		return 2
	}
	return 1
}

// RequestByte returns the handshake byte a receiver sends to ask for m.
func (m Mode) RequestByte() byte {
	if m == ModeCRC16 {
		return CRC
	}
	return NAK
}

// ModeFromRequest maps a handshake byte to the mode it requests.
func ModeFromRequest(b byte) (Mode, bool) {
	switch b {
	case NAK:
		return ModeChecksum, true
	case CRC:
		return ModeCRC16, true
	}
	return 0, false
}

// Checksum returns the unsigned 8-bit sum of data, truncated mod 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// CRC16 returns the CRC-16/XMODEM of data (poly 0x1021, init 0, no final XOR).
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// putValidator writes the validator of payload into dst and returns its length.
// The CRC is sent high byte first.
func putValidator(dst, payload []byte, mode Mode) int {
	if mode == ModeCRC16 {
		crc := CRC16(payload)
		dst[0] = byte(crc >> 8)
		dst[1] = byte(crc)
		return 2
	}
	dst[0] = Checksum(payload)
	return 1
}

// validatorOK reports whether v is the validator of payload.
func validatorOK(v, payload []byte, mode Mode) bool {
	if mode == ModeCRC16 {
		crc := CRC16(payload)
		return v[0] == byte(crc>>8) && v[1] == byte(crc)
	}
	return v[0] == Checksum(payload)
}
