// Package stream drives a streaming scan against a pooled TDS connection:
// send the SQL_BATCH, feed packets to the token parser, and fill
// host-engine row chunks under bounded memory.
package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/mssqlext/mssql-extension/pkg/pool"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// state is the iterator's lifecycle position, generalized from the
// server-side cursor's handle/position bookkeeping (teacher
// pkg/tds/cursor.go's Cursor/CursorCache) into a client-side consumer that
// drains a live result stream instead of serving sp_cursorfetch calls.
type state int32

const (
	stateInitializing state = iota
	stateStreaming
	stateDraining
	stateComplete
	stateError
)

// DefaultChunkSize is the host engine's default FillChunk row count.
const DefaultChunkSize = 2048

// DefaultCancelTimeout bounds how long Cancel waits for an ATTN-ack DONE
// before destroying the connection.
const DefaultCancelTimeout = 5 * time.Second

// Iterator drives one SQL_BATCH result stream to completion, producing
// rows via FillChunk.
type Iterator struct {
	handle *pool.Handle
	conn   *pool.Conn

	state      int32 // state, atomic
	cancelFlag int32 // atomic bool, set by Cancel

	columns      []tds.Column
	warnings     []string
	rowsAffected uint64
	err          error

	cancelTimeout time.Duration
	readDeadline  time.Time
}

// Execute acquires nothing itself (the caller supplies an already-acquired
// handle, e.g. one pinned to an open transaction) and sends sql as a
// SQL_BATCH, returning an Iterator positioned at Initializing.
func Execute(h *pool.Handle, sql string, txnDescriptor uint64, readDeadline time.Time) (*Iterator, error) {
	c := h.Conn()
	if err := c.BeginExecute(); err != nil {
		return nil, err
	}
	payload := tds.BuildSQLBatch(sql, txnDescriptor, 0)
	if err := c.Framer.SendMessage(tds.PacketSQLBatch, payload); err != nil {
		c.Fail()
		return nil, errx.Wrap(err, errx.KindTransport, "tds: batch send failed")
	}
	return &Iterator{
		handle:        h,
		conn:          c,
		state:         int32(stateInitializing),
		cancelTimeout: DefaultCancelTimeout,
		readDeadline:  readDeadline,
	}, nil
}

func (it *Iterator) load() state { return state(atomic.LoadInt32(&it.state)) }
func (it *Iterator) store(s state) { atomic.StoreInt32(&it.state, int32(s)) }

// Columns returns the COLMETADATA snapshot once Streaming has begun; nil
// during Initializing.
func (it *Iterator) Columns() []tds.Column { return it.columns }

// Warnings returns INFO-token text accumulated so far, newest appended
// last. Cleared of nothing — callers track how many they've already seen.
func (it *Iterator) Warnings() []string { return it.warnings }

// RowsAffected returns the row count from the most recent DONE token that
// carried one, meaningful for DML statements (UPDATE/DELETE/INSERT)
// driven through this iterator rather than FillChunk's SELECT result
// rows. Zero until the stream reaches its final DONE.
func (it *Iterator) RowsAffected() uint64 { return it.rowsAffected }

// Cancel requests cooperative cancellation: checked between parser yields
// and at chunk boundaries. Idempotent and safe at any
// iterator state.
func (it *Iterator) Cancel() { atomic.StoreInt32(&it.cancelFlag, 1) }

func (it *Iterator) cancelled() bool { return atomic.LoadInt32(&it.cancelFlag) != 0 }

// Row is one decoded data row.
type Row struct {
	Values []interface{}
}

// FillChunk fills up to len(out) rows, returning the count filled. Zero
// with a nil error signals end of stream; the iterator is then Complete
// and its connection has been released back to the pool. A non-nil error
// means the stream failed; the connection was destroyed rather than
// pooled.
func (it *Iterator) FillChunk(ctx context.Context, out []Row) (int, error) {
	if it.load() == stateError {
		return 0, it.err
	}
	if it.load() == stateComplete {
		return 0, nil
	}

	n := 0
	for n < len(out) {
		if it.cancelled() && it.load() != stateDraining {
			if err := it.beginCancel(); err != nil {
				return n, it.fail(err)
			}
		}

		tok, err := it.conn.TokenReader().Next()
		if err == tds.ErrNeedMoreData {
			if err := it.pullPacket(ctx); err != nil {
				return n, it.fail(err)
			}
			continue
		}
		if err != nil {
			return n, it.fail(errx.Wrap(err, errx.KindProtocol, "tds: token stream parse failed"))
		}

		switch v := tok.(type) {
		case tds.ColMetadata:
			if it.load() == stateInitializing {
				it.columns = v.Columns
				it.store(stateStreaming)
			}
		case tds.Row:
			if it.load() == stateDraining {
				continue // further result set after MORE: drained and discarded
			}
			out[n] = Row{Values: v.Values}
			n++
		case tds.Done:
			if v.HasCount() {
				it.rowsAffected = v.RowCount
			}
			if it.load() == stateDraining {
				if v.Status&tds.DoneAttn != 0 || !v.More() {
					it.finishCancelledDrain()
					return n, nil
				}
				continue
			}
			if v.More() {
				it.store(stateDraining)
				continue
			}
			// DONE without MORE while Initializing or Streaming: stream
			// complete (an empty result set completes straight from
			// Initializing with no COLMETADATA ever observed).
			it.store(stateComplete)
			it.finishComplete()
			return n, nil
		case tds.ServerError:
			if v.IsInfo {
				it.warnings = append(it.warnings, v.Message)
				continue
			}
			fatal := v.Severity >= 20 || it.load() == stateInitializing
			if fatal {
				return n, it.fail(errx.Server(v.Number, v.State, v.Severity, v.ProcName, v.LineNumber, v.Message))
			}
			it.warnings = append(it.warnings, v.Message)
		default:
			// ENVCHANGE, LOGINACK, FEDAUTHINFO and skipped tokens: no
			// iterator-visible effect.
		}
	}
	return n, nil
}

// pullPacket reads one packet and feeds it to the parser, respecting ctx's
// deadline in addition to the iterator's configured read deadline.
func (it *Iterator) pullPacket(ctx context.Context) error {
	deadline := it.readDeadline
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	_, payload, err := it.conn.Framer.ReceivePacket(deadline)
	if err != nil {
		return errx.Wrap(err, errx.KindTransport, "tds: result stream receive failed")
	}
	it.conn.TokenReader().Feed(payload)
	return nil
}

// beginCancel sends ATTENTION and moves to Draining. The underlying
// connection has been in Executing since Execute regardless of whether
// the iterator itself was still Initializing or already Streaming, so
// Conn.BeginCancel is always the correct transition here — cancellation
// during Initializing (before any rows) still requires Draining to leave
// the connection recyclable.
func (it *Iterator) beginCancel() error {
	if err := it.conn.BeginCancel(); err != nil {
		return err
	}
	it.store(stateDraining)
	if err := it.conn.Framer.SendMessage(tds.PacketAttention, tds.BuildAttention()); err != nil {
		return errx.Wrap(err, errx.KindTransport, "tds: attention send failed")
	}
	it.readDeadline = time.Now().Add(it.cancelTimeout)
	return nil
}

// finishCancelledDrain completes a Draining pass (ATTN-ack observed, or
// the stream ended naturally while draining) by returning the connection
// to Idle.
func (it *Iterator) finishCancelledDrain() {
	if err := it.conn.FinishCancel(); err != nil {
		it.conn.Fail()
	}
	it.store(stateComplete)
	it.handle.Release()
}

// finishComplete completes a normal (non-cancelled) stream end.
func (it *Iterator) finishComplete() {
	if err := it.conn.FinishExecute(); err != nil {
		it.conn.Fail()
	}
	it.handle.Release()
}

func (it *Iterator) fail(err error) error {
	it.err = err
	it.store(stateError)
	it.conn.Fail()
	it.handle.Release()
	return err
}
