package session

import (
	"encoding/binary"
	"errors"
)

const encodingVersion = 1

var errCorruptRecord = errors.New("corrupt session record")

// encode serializes a session record (minus the token, which is the
// storage key) into a compact binary blob:
//
//	version(1) | identityLen(2) | identity | fpLen(1) | fingerprint |
//	issuedAt(8) | expiresAt(8)
func encode(s *Session) ([]byte, error) {
	if len(s.Identity) > 0xFFFF {
		return nil, errors.New("identity too long")
	}
	if len(s.Fingerprint) > 0xFF {
		return nil, errors.New("fingerprint too long")
	}

	buf := make([]byte, 0, 1+2+len(s.Identity)+1+len(s.Fingerprint)+16)
	buf = append(buf, encodingVersion)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s.Identity)))
	buf = append(buf, s.Identity...)
	buf = append(buf, byte(len(s.Fingerprint)))
	buf = append(buf, s.Fingerprint...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.IssuedAt))
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.ExpiresAt))
	return buf, nil
}

func decode(data []byte) (*Session, error) {
	if len(data) < 1 || data[0] != encodingVersion {
		return nil, errCorruptRecord
	}
	idx := 1

	if len(data) < idx+2 {
		return nil, errCorruptRecord
	}
	identityLen := int(binary.BigEndian.Uint16(data[idx:]))
	idx += 2
	if len(data) < idx+identityLen {
		return nil, errCorruptRecord
	}
	identity := string(data[idx : idx+identityLen])
	idx += identityLen

	if len(data) < idx+1 {
		return nil, errCorruptRecord
	}
	fpLen := int(data[idx])
	idx++
	if len(data) < idx+fpLen {
		return nil, errCorruptRecord
	}
	fp := string(data[idx : idx+fpLen])
	idx += fpLen

	if len(data) != idx+16 {
		return nil, errCorruptRecord
	}
	issuedAt := int64(binary.BigEndian.Uint64(data[idx:]))
	expiresAt := int64(binary.BigEndian.Uint64(data[idx+8:]))

	return &Session{
		Identity:    identity,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		Fingerprint: fp,
	}, nil
}
