package tds

import (
	"bytes"
	"encoding/binary"
)

// ALL_HEADERS header type ids (MS-TDS 2.2.5.3.1).
const (
	headerTypeQueryNotification  uint16 = 1
	headerTypeTransactionDescriptor uint16 = 2
	headerTypeTraceActivity      uint16 = 3
)

// BuildAllHeaders assembles the ALL_HEADERS block that precedes the SQL
// text of every SQL_BATCH (and the rows of every BULK_LOAD): a 4-byte
// total length followed by one Transaction Descriptor header carrying the
// 8-byte transaction id this client is enlisted in (0 outside a
// transaction) and the count of requests still outstanding on it.
func BuildAllHeaders(txnDescriptor uint64, outstandingRequests uint32) []byte {
	var buf bytes.Buffer
	const headerLen = 4 + 2 + 8 + 4 // HeaderLength + HeaderType + descriptor + count
	const totalLen = 4 + headerLen

	binary.Write(&buf, binary.LittleEndian, uint32(totalLen))
	binary.Write(&buf, binary.LittleEndian, uint32(headerLen))
	binary.Write(&buf, binary.LittleEndian, headerTypeTransactionDescriptor)
	binary.Write(&buf, binary.LittleEndian, txnDescriptor)
	binary.Write(&buf, binary.LittleEndian, outstandingRequests)
	return buf.Bytes()
}

// BuildSQLBatch assembles a SQL_BATCH message payload: ALL_HEADERS
// followed by the query text in UCS-2.
func BuildSQLBatch(sqlText string, txnDescriptor uint64, outstandingRequests uint32) []byte {
	var buf bytes.Buffer
	buf.Write(BuildAllHeaders(txnDescriptor, outstandingRequests))
	buf.Write(stringToUCS2(sqlText))
	return buf.Bytes()
}

// BuildAttention returns an ATTENTION message payload — always empty; the
// packet header alone (type 0x06, EOM set) signals cancellation.
func BuildAttention() []byte {
	return nil
}
