package pool

import (
	"strings"

	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// PinAction describes what the pool should do after observing a connection
// event. Adapted from a proxy's packet-sniffing approach (inspecting
// outbound SQL text and TDS transaction-manager packets for BEGIN/COMMIT/
// ROLLBACK) to this pool's own knowledge of the calls it issues itself:
// the pool knows when it sends BEGIN TRAN, and confirms the server agreed
// by watching for the matching ENVCHANGE sub-type in the response stream.
type PinAction int

const (
	PinActionNone PinAction = iota
	PinActionPin
	PinActionUnpin
)

// InspectEnvChange maps an observed ENVCHANGE token to a pinning action.
// Sub-types 8/9/10 (begin/commit/rollback transaction) are the server's
// confirmation that a transaction actually started or ended; the pool uses
// this instead of speculatively pinning on the SQL text alone, since a
// BEGIN TRAN batch could fail before the transaction is actually opened.
func InspectEnvChange(ec tds.EnvChange) PinAction {
	switch ec.SubType {
	case tds.EnvBeginTran:
		return PinActionPin
	case tds.EnvCommitTran, tds.EnvRollbackTran:
		return PinActionUnpin
	default:
		return PinActionNone
	}
}

// LooksLikeTransactionControl reports whether sqlText begins a statement
// that will start or end a transaction, used to decide whether a batch's
// outstanding-request accounting in ALL_HEADERS should assume the
// connection may become pinned. This is advisory only: the authoritative
// signal is InspectEnvChange on the response.
func LooksLikeTransactionControl(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	upper := strings.ToUpper(trimmed)
	return strings.HasPrefix(upper, "BEGIN TRAN") ||
		strings.HasPrefix(upper, "BEGIN DISTRIBUTED TRAN") ||
		strings.HasPrefix(upper, "COMMIT") ||
		strings.HasPrefix(upper, "ROLLBACK") ||
		strings.HasPrefix(upper, "SAVE TRAN")
}

// DoneIsInTransaction reports whether a DONE token's status carries the
// in-transaction bit some servers set (bit 0x0004, "DONE_INXACT" in
// MS-TDS), a secondary pinning signal alongside ENVCHANGE.
func DoneIsInTransaction(status uint16) bool {
	const doneInXact = 0x0004
	return status&doneInXact != 0
}
