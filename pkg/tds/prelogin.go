package tds

import (
	"encoding/binary"
	"fmt"
)

// TDS protocol versions.
const (
	VerTDS70     uint32 = 0x70000000
	VerTDS71     uint32 = 0x71000000
	VerTDS71Rev1 uint32 = 0x71000001
	VerTDS72     uint32 = 0x72090002
	VerTDS73A    uint32 = 0x730A0003
	VerTDS73B    uint32 = 0x730B0003
	VerTDS74     uint32 = 0x74000004
)

// VersionString returns a human-readable version string.
func VersionString(ver uint32) string {
	switch ver {
	case VerTDS70:
		return "7.0"
	case VerTDS71:
		return "7.1"
	case VerTDS71Rev1:
		return "7.1 Rev 1"
	case VerTDS72:
		return "7.2"
	case VerTDS73A:
		return "7.3A"
	case VerTDS73B:
		return "7.3B"
	case VerTDS74:
		return "7.4"
	default:
		return fmt.Sprintf("unknown (0x%08X)", ver)
	}
}

// Prelogin option tokens (MS-TDS 2.2.6.5).
const (
	PreloginVersion    uint8 = 0x00
	PreloginEncryption uint8 = 0x01
	PreloginInstOpt    uint8 = 0x02
	PreloginThreadID   uint8 = 0x03
	PreloginMARS       uint8 = 0x04
	PreloginTraceID    uint8 = 0x05
	PreloginFedAuth    uint8 = 0x06
	PreloginNonceOpt   uint8 = 0x07
	PreloginTerminator uint8 = 0xFF
)

// Encryption options for prelogin.
const (
	EncryptOff    uint8 = 0x00 // available but off
	EncryptOn     uint8 = 0x01 // available and on
	EncryptNotSup uint8 = 0x02 // not supported
	EncryptReq    uint8 = 0x03 // required
)

// ServerVersion is the 6-byte version block a server echoes in its
// PRELOGIN response.
type ServerVersion struct {
	Major    uint8
	Minor    uint8
	Build    uint16
	SubBuild uint16
}

func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// PreloginRequest holds the options this client sends in its PRELOGIN
// message before LOGIN7.
type PreloginRequest struct {
	Version    ServerVersion // client's own "version", echoed back loosely by servers
	Encryption uint8
	Instance   string
	ThreadID   uint32
	MARS       bool
	FedAuthRequired bool
}

// Marshal builds the wire bytes of a PRELOGIN request: an option header
// table (token, offset, length) terminated by 0xFF, followed by the
// concatenated option payloads.
func (p PreloginRequest) Marshal() []byte {
	versionData := []byte{p.Version.Major, p.Version.Minor, byte(p.Version.Build >> 8), byte(p.Version.Build), byte(p.Version.SubBuild >> 8), byte(p.Version.SubBuild)}
	instanceData := append([]byte(p.Instance), 0)
	marsByte := byte(0)
	if p.MARS {
		marsByte = 1
	}

	type opt struct {
		token uint8
		data  []byte
	}
	opts := []opt{
		{PreloginVersion, versionData},
		{PreloginEncryption, []byte{p.Encryption}},
		{PreloginInstOpt, instanceData},
		{PreloginThreadID, encodeUint32BE(p.ThreadID)},
		{PreloginMARS, []byte{marsByte}},
	}
	if p.FedAuthRequired {
		opts = append(opts, opt{PreloginFedAuth, []byte{0x01}})
	}

	headerSize := len(opts)*5 + 1
	offset := uint16(headerSize)
	buf := make([]byte, 0, headerSize)
	var payload []byte
	for _, o := range opts {
		hdr := make([]byte, 5)
		hdr[0] = o.token
		binary.BigEndian.PutUint16(hdr[1:3], offset)
		binary.BigEndian.PutUint16(hdr[3:5], uint16(len(o.data)))
		buf = append(buf, hdr...)
		payload = append(payload, o.data...)
		offset += uint16(len(o.data))
	}
	buf = append(buf, PreloginTerminator)
	return append(buf, payload...)
}

func encodeUint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// PreloginResponse is the server's reply, parsed out of the option table.
type PreloginResponse struct {
	Version    ServerVersion
	Encryption uint8
	Instance   string
	ThreadID   uint32
	MARS       bool
	FedAuth    uint8
	Nonce      []byte
}

// ParsePreloginResponse parses a server PRELOGIN response.
func ParsePreloginResponse(data []byte) (*PreloginResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("tds: empty prelogin response")
	}

	type opt struct {
		offset, length uint16
	}
	options := make(map[uint8]opt)
	pos := 0
	for {
		if pos >= len(data) {
			return nil, fmt.Errorf("tds: prelogin response truncated reading options")
		}
		token := data[pos]
		if token == PreloginTerminator {
			break
		}
		if pos+5 > len(data) {
			return nil, fmt.Errorf("tds: prelogin option header truncated")
		}
		options[token] = opt{
			offset: binary.BigEndian.Uint16(data[pos+1 : pos+3]),
			length: binary.BigEndian.Uint16(data[pos+3 : pos+5]),
		}
		pos += 5
	}

	r := &PreloginResponse{}
	for token, o := range options {
		start, end := int(o.offset), int(o.offset)+int(o.length)
		if end > len(data) {
			return nil, fmt.Errorf("tds: prelogin option 0x%02X out of bounds", token)
		}
		value := data[start:end]
		switch token {
		case PreloginVersion:
			if len(value) >= 6 {
				r.Version = ServerVersion{
					Major:    value[0],
					Minor:    value[1],
					Build:    binary.BigEndian.Uint16(value[2:4]),
					SubBuild: binary.BigEndian.Uint16(value[4:6]),
				}
			}
		case PreloginEncryption:
			if len(value) >= 1 {
				r.Encryption = value[0]
			}
		case PreloginInstOpt:
			for i, b := range value {
				if b == 0 {
					r.Instance = string(value[:i])
					break
				}
			}
		case PreloginThreadID:
			if len(value) >= 4 {
				r.ThreadID = binary.BigEndian.Uint32(value)
			}
		case PreloginMARS:
			if len(value) >= 1 {
				r.MARS = value[0] != 0
			}
		case PreloginFedAuth:
			if len(value) >= 1 {
				r.FedAuth = value[0]
			}
		case PreloginNonceOpt:
			if len(value) >= 32 {
				r.Nonce = append([]byte(nil), value[:32]...)
			}
		}
	}
	return r, nil
}

// RequiresTLS reports whether the negotiated encryption option means this
// client must upgrade the socket to TLS before LOGIN7.
func (r *PreloginResponse) RequiresTLS() bool {
	return r.Encryption == EncryptOn || r.Encryption == EncryptReq
}
