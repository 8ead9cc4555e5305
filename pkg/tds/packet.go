// Package tds implements the client side of the TDS (Tabular Data Stream)
// wire protocol used by Microsoft SQL Server, targeting protocol version
// 7.4. Unlike a server-side TDS listener, this package only ever dials
// out: it opens connections, negotiates PRELOGIN/LOGIN7, and drives the
// token stream the server sends back.
package tds

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketType identifies the type of TDS packet, the first byte of every
// packet header (MS-TDS 2.2.3.1.1).
type PacketType uint8

const (
	// PacketSQLBatch carries an ad-hoc SQL_BATCH request.
	PacketSQLBatch PacketType = 0x01

	// PacketRPCRequest carries an RPC request (not used by this client).
	PacketRPCRequest PacketType = 0x03

	// PacketTabularResult is the server's result-stream message type.
	PacketTabularResult PacketType = 0x04

	// PacketAttention is the cancellation message.
	PacketAttention PacketType = 0x06

	// PacketBulkLoad carries an INSERT BULK payload.
	PacketBulkLoad PacketType = 0x07

	// PacketFedAuthToken carries a federated-auth access token post-login.
	PacketFedAuthToken PacketType = 0x08

	// PacketTransMgrReq is used for distributed transaction management.
	PacketTransMgrReq PacketType = 0x0E

	// PacketLogin7 carries the TDS 7.x login message.
	PacketLogin7 PacketType = 0x10

	// PacketSSPIMessage carries SSPI/Windows authentication (unsupported; see Non-goals).
	PacketSSPIMessage PacketType = 0x11

	// PacketPrelogin negotiates version, encryption, and packet size.
	PacketPrelogin PacketType = 0x12
)

func (p PacketType) String() string {
	switch p {
	case PacketSQLBatch:
		return "SQL_BATCH"
	case PacketRPCRequest:
		return "RPC_REQUEST"
	case PacketTabularResult:
		return "TABULAR_RESULT"
	case PacketAttention:
		return "ATTENTION"
	case PacketBulkLoad:
		return "BULK_LOAD"
	case PacketFedAuthToken:
		return "FEDAUTH_TOKEN"
	case PacketTransMgrReq:
		return "TRANS_MGR_REQ"
	case PacketLogin7:
		return "LOGIN7"
	case PacketSSPIMessage:
		return "SSPI_MESSAGE"
	case PacketPrelogin:
		return "PRELOGIN"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(p))
	}
}

// PacketStatus carries the header's status bit field (MS-TDS 2.2.3.1.2).
type PacketStatus uint8

const (
	StatusNormal    PacketStatus = 0x00
	StatusEOM       PacketStatus = 0x01 // last packet of the message
	StatusIgnore    PacketStatus = 0x02
	StatusResetConn PacketStatus = 0x08
)

// HeaderSize is the fixed size of a TDS packet header.
const HeaderSize = 8

// DefaultPacketSize applies until LOGIN7 negotiates a different value.
const DefaultPacketSize = 4096

// MaxPacketSize is the largest packet length the wire format can express.
const MaxPacketSize = 32767

// MinPacketSize is the smallest packet size this client will negotiate.
const MinPacketSize = 512

// Header is the 8-byte TDS packet header.
//
//	Byte 0:   Type
//	Byte 1:   Status
//	Byte 2-3: Length (big-endian, includes header)
//	Byte 4-5: SPID (big-endian, echoed by the server)
//	Byte 6:   PacketID (wraps mod 256, resets to 1 per message)
//	Byte 7:   Window (unused, always 0)
type Header struct {
	Type     PacketType
	Status   PacketStatus
	Length   uint16
	SPID     uint16
	PacketID uint8
	Window   uint8
}

// IsEOM reports whether this is the final packet of its message.
func (h Header) IsEOM() bool {
	return h.Status&StatusEOM != 0
}

// PayloadLength returns the number of payload bytes implied by Length.
func (h Header) PayloadLength() int {
	if int(h.Length) <= HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

// Marshal serializes the header to its 8-byte wire form.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Status)
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.SPID)
	buf[6] = h.PacketID
	buf[7] = h.Window
	return buf
}

// ReadHeader reads and validates an 8-byte header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:])
}

// ParseHeader parses a fixed 8-byte buffer into a Header, enforcing the
// invariant that Length >= HeaderSize and never exceeds MaxPacketSize.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("tds: header too short: %d bytes", len(buf))
	}
	h := Header{
		Type:     PacketType(buf[0]),
		Status:   PacketStatus(buf[1]),
		Length:   binary.BigEndian.Uint16(buf[2:4]),
		SPID:     binary.BigEndian.Uint16(buf[4:6]),
		PacketID: buf[6],
		Window:   buf[7],
	}
	if int(h.Length) < HeaderSize {
		return Header{}, fmt.Errorf("tds: packet length %d is less than header size", h.Length)
	}
	if int(h.Length) > MaxPacketSize {
		return Header{}, fmt.Errorf("tds: packet length %d exceeds max %d", h.Length, MaxPacketSize)
	}
	return h, nil
}
