// Package bulk drives a BULK_LOAD upload over a pooled TDS connection:
// issue INSERT BULK, stream rows, and read the server's completion DONE.
package bulk

import (
	"sync"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/mssqlext/mssql-extension/pkg/pool"
	"github.com/mssqlext/mssql-extension/pkg/tds"
)

// Options configures one bulk-load operation.
type Options struct {
	TableName string // pre-quoted, e.g. "[dbo].[Orders]"
	Columns   []tds.Column
	UseNBCRow bool

	// TABLOCKExplicit, when non-nil, overrides the auto-TABLOCK heuristic:
	// the caller has set the option explicitly and that choice wins either
	// way.
	TABLOCKExplicit *bool

	// NewlyCreatedTable marks that TableName was just created by this same
	// operation (CTAS, or COPY ... CREATE_TABLE true against a table that
	// did not previously exist), the trigger for auto-TABLOCK.
	NewlyCreatedTable bool

	// ResponseTimeout bounds how long FlushBatch waits for the server's
	// completion DONE.
	ResponseTimeout time.Duration
}

func (o Options) withOptions() []string {
	if o.TABLOCKExplicit != nil {
		if *o.TABLOCKExplicit {
			return []string{"TABLOCK"}
		}
		return nil
	}
	if o.NewlyCreatedTable {
		return []string{"TABLOCK"}
	}
	return nil
}

// Writer serializes WriteRows calls from multiple host-engine worker
// goroutines into one bulk batch. FlushBatch and the subsequent response
// read are strictly sequential and must not overlap WriteRows.
type Writer struct {
	opts Options

	mu  sync.Mutex // guards the inner BulkLoadWriter across concurrent WriteRows
	low *tds.BulkLoadWriter

	handle *pool.Handle
	conn   *pool.Conn
}

// New prepares a writer bound to an acquired connection. The caller sends
// Options.TableName/Columns-appropriate INSERT BULK statement first via
// IssueInsertBulk, then streams rows via WriteRows, then calls FlushBatch.
func New(h *pool.Handle, opts Options) *Writer {
	return &Writer{
		opts:   opts,
		low:    tds.NewBulkLoadWriter(opts.Columns, opts.UseNBCRow),
		handle: h,
		conn:   h.Conn(),
	}
}

// InsertBulkStatement renders the INSERT BULK statement this writer will
// precede its BULK_LOAD stream with, honoring the auto-TABLOCK heuristic.
func (w *Writer) InsertBulkStatement() string {
	return tds.BuildInsertBulkStatement(w.opts.TableName, w.opts.Columns, w.opts.withOptions())
}

// IssueInsertBulk sends the INSERT BULK statement as an ordinary SQL_BATCH
// and reads the server's acknowledging COLMETADATA-less DONE that signals
// readiness for the BULK_LOAD token stream.
func (w *Writer) IssueInsertBulk(txnDescriptor uint64) error {
	if err := w.conn.BeginExecute(); err != nil {
		return err
	}
	payload := tds.BuildSQLBatch(w.InsertBulkStatement(), txnDescriptor, 0)
	if err := w.conn.Framer.SendMessage(tds.PacketSQLBatch, payload); err != nil {
		w.conn.Fail()
		return errx.Wrap(err, errx.KindTransport, "tds: insert bulk send failed")
	}
	if err := w.drainDone(30 * time.Second); err != nil {
		return err
	}
	return nil
}

// WriteColMetadata emits the BULK_LOAD COLMETADATA token; must precede any
// WriteRows call.
func (w *Writer) WriteColMetadata() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.low.WriteHeader()
}

// WriteRows appends one ROW/NBCROW token per host row. Safe to call from
// multiple goroutines concurrently; each call is serialized by an internal
// mutex so interleaved chunks never corrupt the shared token buffer.
func (w *Writer) WriteRows(chunk [][]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range chunk {
		if err := w.low.WriteRow(row); err != nil {
			return errx.Wrap(err, errx.KindTypeMapping, "tds: bulk row encode failed")
		}
	}
	return nil
}

// FlushBatch appends the terminating DONE and ships the accumulated
// buffer as one BULK_LOAD message, then reads the server's completion
// response. Not safe to call concurrently with WriteRows — the caller's
// worker goroutines must have finished writing before calling this.
func (w *Writer) FlushBatch() (rowCount uint64, err error) {
	w.mu.Lock()
	body := w.low.Finish()
	rowCount = w.low.RowCount()
	w.mu.Unlock()

	if err := w.conn.Framer.SendMessage(tds.PacketBulkLoad, body); err != nil {
		w.fail()
		return 0, errx.Wrap(err, errx.KindTransport, "tds: bulk load send failed")
	}

	timeout := w.opts.ResponseTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if err := w.drainDone(timeout); err != nil {
		return 0, err
	}
	if err := w.conn.FinishExecute(); err != nil {
		w.conn.Fail()
		return 0, err
	}
	return rowCount, nil
}

// drainDone reads packets until the server's completion DONE (or a fatal
// ERROR) arrives. On error the connection is marked Disconnected: BULK_LOAD
// failure mid-stream is not reliably recoverable, so the connection must
// not be returned to the pool.
func (w *Writer) drainDone(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	reader := w.conn.TokenReader()
	for {
		tok, err := reader.Next()
		if err == tds.ErrNeedMoreData {
			_, payload, rerr := w.conn.Framer.ReceivePacket(deadline)
			if rerr != nil {
				w.fail()
				return errx.Wrap(rerr, errx.KindTransport, "tds: bulk load response receive failed")
			}
			reader.Feed(payload)
			continue
		}
		if err != nil {
			w.fail()
			return errx.Wrap(err, errx.KindProtocol, "tds: bulk load response parse failed")
		}
		switch v := tok.(type) {
		case tds.Done:
			return nil
		case tds.ServerError:
			if v.IsInfo {
				continue
			}
			w.fail()
			return errx.Server(v.Number, v.State, v.Severity, v.ProcName, v.LineNumber, v.Message)
		}
	}
}

func (w *Writer) fail() {
	w.conn.Fail()
}

// Release returns the underlying connection handle to the pool (or
// destroys it, if FlushBatch failed and the connection was marked
// Disconnected).
func (w *Writer) Release() {
	w.handle.Release()
}
