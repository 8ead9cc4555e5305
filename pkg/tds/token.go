package tds

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TokenType identifies a token in the TDS response token stream
// (MS-TDS 2.2.4).
type TokenType uint8

const (
	TokenReturnStatus  TokenType = 0x79
	TokenColMetadata   TokenType = 0x81
	TokenColInfo       TokenType = 0xA5
	TokenOrder         TokenType = 0xA9
	TokenError         TokenType = 0xAA
	TokenInfo          TokenType = 0xAB
	TokenReturnValue   TokenType = 0xAC
	TokenLoginAck      TokenType = 0xAD
	TokenFeatureExtAck TokenType = 0xAE
	TokenRow           TokenType = 0xD1
	TokenNBCRow        TokenType = 0xD2
	TokenEnvChange     TokenType = 0xE3
	TokenSSPI          TokenType = 0xED
	TokenFedAuthInfo   TokenType = 0xEE
	TokenDone          TokenType = 0xFD
	TokenDoneProc      TokenType = 0xFE
	TokenDoneInProc    TokenType = 0xFF
)

func (t TokenType) String() string {
	switch t {
	case TokenReturnStatus:
		return "RETURNSTATUS"
	case TokenColMetadata:
		return "COLMETADATA"
	case TokenColInfo:
		return "COLINFO"
	case TokenOrder:
		return "ORDER"
	case TokenError:
		return "ERROR"
	case TokenInfo:
		return "INFO"
	case TokenReturnValue:
		return "RETURNVALUE"
	case TokenLoginAck:
		return "LOGINACK"
	case TokenFeatureExtAck:
		return "FEATUREEXTACK"
	case TokenRow:
		return "ROW"
	case TokenNBCRow:
		return "NBCROW"
	case TokenEnvChange:
		return "ENVCHANGE"
	case TokenSSPI:
		return "SSPI"
	case TokenFedAuthInfo:
		return "FEDAUTHINFO"
	case TokenDone:
		return "DONE"
	case TokenDoneProc:
		return "DONEPROC"
	case TokenDoneInProc:
		return "DONEINPROC"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// DONE token status flags (MS-TDS 2.2.7.6).
const (
	DoneFinal    uint16 = 0x0000
	DoneMore     uint16 = 0x0001
	DoneError    uint16 = 0x0002
	DoneInxact   uint16 = 0x0004
	DoneCount    uint16 = 0x0010
	DoneAttn     uint16 = 0x0020
	DoneSrvError uint16 = 0x0100
)

// ENVCHANGE token sub-types (MS-TDS 2.2.7.9).
const (
	EnvDatabase            uint8 = 1
	EnvLanguage            uint8 = 2
	EnvCharset             uint8 = 3
	EnvPacketSize          uint8 = 4
	EnvSortID              uint8 = 5
	EnvSortFlags           uint8 = 6
	EnvSQLCollation        uint8 = 7
	EnvBeginTran           uint8 = 8
	EnvCommitTran          uint8 = 9
	EnvRollbackTran        uint8 = 10
	EnvEnlistDTC           uint8 = 11
	EnvDefectTran          uint8 = 12
	EnvMirrorPartner       uint8 = 13
	EnvPromoteTran         uint8 = 15
	EnvTranMgrAddr         uint8 = 16
	EnvTranEnded           uint8 = 17
	EnvResetConnAck        uint8 = 18
	EnvStartedInstanceName uint8 = 19
	EnvRouting             uint8 = 20
)

// LoginAckInterface is the TDS interface version echoed in LOGINACK.
type LoginAckInterface uint8

const (
	LoginAckSQL70   LoginAckInterface = 0x70
	LoginAckSQL2000 LoginAckInterface = 0x71
	LoginAckSQL2005 LoginAckInterface = 0x72
	LoginAckSQL2008 LoginAckInterface = 0x73
	LoginAckSQL2012 LoginAckInterface = 0x74
)

// Done is a decoded DONE/DONEPROC/DONEINPROC token.
type Done struct {
	Type     TokenType
	Status   uint16
	CurCmd   uint16
	RowCount uint64
}

// More reports whether another result set follows this DONE.
func (d Done) More() bool { return d.Status&DoneMore != 0 }

// HasError reports whether the DONE token signals an error occurred.
func (d Done) HasError() bool { return d.Status&DoneError != 0 }

// HasCount reports whether RowCount is meaningful.
func (d Done) HasCount() bool { return d.Status&DoneCount != 0 }

// EnvChange is a decoded ENVCHANGE token.
type EnvChange struct {
	SubType  uint8
	NewValue string
	OldValue string
	// NewRaw/OldRaw hold the undecoded bytes for sub-types (e.g. collation,
	// routing) whose payload isn't a B_VARCHAR pair.
	NewRaw []byte
	OldRaw []byte
}

// LoginAck is a decoded LOGINACK token.
type LoginAck struct {
	Interface   LoginAckInterface
	TDSVersion  uint32
	ProgName    string
	ProgVersion uint32
}

// ServerError is a decoded ERROR or INFO token.
type ServerError struct {
	IsInfo    bool
	Number    int32
	State     byte
	Severity  byte
	Message   string
	ServerName string
	ProcName  string
	LineNumber int32
}

// FedAuthInfo is a decoded FEDAUTHINFO token, used during Azure AD
// authentication to discover the STS URL and server SPN.
type FedAuthInfo struct {
	STSURL string
	SPN    string
}

// TokenWriter accumulates an outbound token stream. This client only ever
// writes COLMETADATA/ROW/NBCROW/DONEINPROC tokens, for the BULK_LOAD
// upload path (pkg/bulk); it never emits ERROR/INFO/ENVCHANGE/LOGINACK,
// which are server-to-client only.
type TokenWriter struct {
	buf bytes.Buffer
}

// NewTokenWriter creates an empty token writer.
func NewTokenWriter() *TokenWriter {
	return &TokenWriter{}
}

// Bytes returns the accumulated token stream.
func (w *TokenWriter) Bytes() []byte { return w.buf.Bytes() }

// Reset clears the buffer for reuse across bulk-load batches.
func (w *TokenWriter) Reset() { w.buf.Reset() }

// WriteDoneInProc writes a DONEINPROC token, used to terminate a BULK_LOAD
// row stream.
func (w *TokenWriter) WriteDoneInProc(status uint16, curCmd uint16, rowCount uint64) {
	w.buf.WriteByte(byte(TokenDoneInProc))
	binary.Write(&w.buf, binary.LittleEndian, status)
	binary.Write(&w.buf, binary.LittleEndian, curCmd)
	binary.Write(&w.buf, binary.LittleEndian, rowCount)
}
