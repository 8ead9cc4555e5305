package tds

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// LOGIN7 option flags (MS-TDS 2.2.6.4).
const (
	// OptionFlags1
	FlagByteOrder uint8 = 0x01 // 0 = little endian
	FlagChar      uint8 = 0x02 // 0 = ASCII
	FlagFloat     uint8 = 0x0C
	FlagDumpLoad  uint8 = 0x10
	FlagUseDB     uint8 = 0x20
	FlagDatabase  uint8 = 0x40
	FlagSetLang   uint8 = 0x80

	// OptionFlags2
	FlagLanguage      uint8 = 0x01
	FlagODBC          uint8 = 0x02
	FlagTransBoundary uint8 = 0x04
	FlagCacheConnect  uint8 = 0x08
	FlagUserType      uint8 = 0x70
	FlagIntSecurity   uint8 = 0x80

	// OptionFlags3
	FlagChangePassword   uint8 = 0x01
	FlagBinaryXML        uint8 = 0x02
	FlagUserInstance     uint8 = 0x04
	FlagUnknownCollation uint8 = 0x08
	FlagExtension        uint8 = 0x10

	// TypeFlags
	FlagSQLType        uint8 = 0x0F
	FlagOLEDB          uint8 = 0x10
	FlagReadOnlyIntent uint8 = 0x20
)

// Login7HeaderSize is the fixed size of the LOGIN7 header.
const Login7HeaderSize = 94

// Login7Request is everything this client needs to build a LOGIN7 message.
// The feature-extension block (fedauth) is assembled
// separately and appended by Marshal when FedAuthToken is set.
type Login7Request struct {
	TDSVersion    uint32
	PacketSize    uint32
	ClientProgVer uint32
	ClientPID     uint32
	ClientTimeZone int32
	ClientLCID    uint32

	HostName   string
	UserName   string
	Password   string // ignored when FedAuthToken is set
	AppName    string
	ServerName string
	CtlIntName string // driver/client library name
	Language   string
	Database   string

	ReadOnlyIntent bool

	// FedAuthToken, when non-empty, switches login to the FEDAUTH feature
	// extension instead of SQL auth (§4.D).
	FedAuthToken string
}

// Marshal builds the wire bytes of a LOGIN7 message: the fixed 94-byte
// header, the offset/length table it embeds, the variable-length string
// region, and (if requested) the FEDAUTH feature extension block.
func (l Login7Request) Marshal() []byte {
	var extension []byte
	if l.FedAuthToken != "" {
		extension = buildFedAuthExtension(l.FedAuthToken)
	}

	hostBytes := stringToUCS2(l.HostName)
	userBytes := stringToUCS2(l.UserName)
	passBytes := mangleUCS2(stringToUCS2(l.Password))
	appBytes := stringToUCS2(l.AppName)
	serverBytes := stringToUCS2(l.ServerName)
	ctlBytes := stringToUCS2(l.CtlIntName)
	langBytes := stringToUCS2(l.Language)
	dbBytes := stringToUCS2(l.Database)

	if l.FedAuthToken != "" {
		passBytes = nil
	}

	offset := uint16(Login7HeaderSize)
	hostOff, userOff, passOff, appOff, serverOff, extOff, ctlOff, langOff, dbOff := offset, offset, offset, offset, offset, offset, offset, offset, offset
	advance := func(n int) uint16 {
		o := offset
		offset += uint16(n)
		return o
	}
	hostOff = advance(len(hostBytes))
	userOff = advance(len(userBytes))
	passOff = advance(len(passBytes))
	appOff = advance(len(appBytes))
	serverOff = advance(len(serverBytes))
	extOff = advance(4) // extension offset field itself is a DWORD pointer
	ctlOff = advance(len(ctlBytes))
	langOff = advance(len(langBytes))
	dbOff = advance(len(dbBytes))
	clientIDOff := offset // no SSPI/AtchDBFile/ChangePassword strings emitted
	_ = clientIDOff
	extensionDataOff := offset

	var buf bytes.Buffer
	var optFlags3 uint8
	if l.FedAuthToken != "" {
		optFlags3 |= FlagExtension
	}
	var typeFlags uint8 = FlagSQLType & 0x01 // SQL_DFLT
	if l.ReadOnlyIntent {
		typeFlags |= FlagReadOnlyIntent
	}

	totalLen := uint32(int(extensionDataOff) + len(extension))

	binary.Write(&buf, binary.LittleEndian, totalLen)
	binary.Write(&buf, binary.LittleEndian, l.TDSVersion)
	binary.Write(&buf, binary.LittleEndian, l.PacketSize)
	binary.Write(&buf, binary.LittleEndian, l.ClientProgVer)
	binary.Write(&buf, binary.LittleEndian, l.ClientPID)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // ConnectionID
	buf.WriteByte(FlagUseDB | FlagSetLang)              // OptionFlags1
	buf.WriteByte(FlagODBC)                             // OptionFlags2
	buf.WriteByte(typeFlags)
	buf.WriteByte(optFlags3)
	binary.Write(&buf, binary.LittleEndian, l.ClientTimeZone)
	binary.Write(&buf, binary.LittleEndian, l.ClientLCID)

	binary.Write(&buf, binary.LittleEndian, hostOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.HostName))))
	binary.Write(&buf, binary.LittleEndian, userOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.UserName))))
	binary.Write(&buf, binary.LittleEndian, passOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.Password))))
	binary.Write(&buf, binary.LittleEndian, appOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.AppName))))
	binary.Write(&buf, binary.LittleEndian, serverOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.ServerName))))
	binary.Write(&buf, binary.LittleEndian, extOff)
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, ctlOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.CtlIntName))))
	binary.Write(&buf, binary.LittleEndian, langOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.Language))))
	binary.Write(&buf, binary.LittleEndian, dbOff)
	binary.Write(&buf, binary.LittleEndian, uint16(len([]rune(l.Database))))
	buf.Write(make([]byte, 6)) // ClientID
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // SSPIOffset
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // SSPILength
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // AtchDBFileOffset
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // AtchDBFileLength
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // ChangePasswordOffset
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // ChangePasswordLength
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // SSPILongLength

	buf.Write(hostBytes)
	buf.Write(userBytes)
	buf.Write(passBytes)
	buf.Write(appBytes)
	buf.Write(serverBytes)
	binary.Write(&buf, binary.LittleEndian, uint32(extensionDataOff))
	buf.Write(ctlBytes)
	buf.Write(langBytes)
	buf.Write(dbBytes)
	buf.Write(extension)

	return buf.Bytes()
}

// buildFedAuthExtension assembles the FEDAUTH feature-extension block
// (MS-TDS 2.2.6.4): a 1-byte feature id (0x02), a 4-byte data length, the
// fedauth library/workflow byte, and the access token as UTF-16LE bytes,
// followed by the 0xFF terminator.
func buildFedAuthExtension(token string) []byte {
	tokenBytes := stringToUCS2(token)
	var data bytes.Buffer
	data.WriteByte(0x02)                                       // library: securitytoken
	binary.Write(&data, binary.LittleEndian, uint32(len(tokenBytes)+4))
	binary.Write(&data, binary.LittleEndian, uint32(len(tokenBytes)))
	data.Write(tokenBytes)

	var out bytes.Buffer
	out.WriteByte(0x02) // FEATUREEXT_FEDAUTH
	binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	out.WriteByte(0xFF) // terminator
	return out.Bytes()
}

// mangleUCS2 applies the LOGIN7 password obfuscation: swap the nibbles of
// each byte, then XOR with 0xA5. This is the exact inverse of the
// demangling a server-side reader applies, not a security measure.
func mangleUCS2(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		swapped := (c << 4) | (c >> 4)
		out[i] = swapped ^ 0xA5
	}
	return out
}

// ucs2ToString converts UCS-2 (UTF-16LE) bytes to a Go string.
func ucs2ToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := 0; i < len(u16); i++ {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16))
}

// stringToUCS2 converts a Go string to UCS-2 (UTF-16LE) bytes.
func stringToUCS2(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	b := make([]byte, len(u16)*2)
	for i, v := range u16 {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}
