package extension

import (
	"context"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/pool"
	"github.com/mssqlext/mssql-extension/pkg/stream"
)

// poolQuerier adapts a pool.Pool into catalog.Querier, draining a
// discovery query to completion and returning every row, since discovery
// queries (sys.schemas/sys.objects/sys.columns) are always small enough
// to collect in memory. This is the one concrete wiring of the narrow
// catalog.Querier seam to the real TDS execution path.
type poolQuerier struct {
	pool *pool.Pool
}

func newPoolQuerier(p *pool.Pool) *poolQuerier { return &poolQuerier{pool: p} }

func (q *poolQuerier) Query(ctx context.Context, sql string) ([][]interface{}, error) {
	h, err := q.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	deadline, _ := ctx.Deadline()
	if deadline.IsZero() {
		deadline = time.Now().Add(30 * time.Second)
	}
	it, err := stream.Execute(h, sql, 0, deadline)
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	chunk := make([]stream.Row, stream.DefaultChunkSize)
	for {
		n, err := it.FillChunk(ctx, chunk)
		for i := 0; i < n; i++ {
			rows = append(rows, chunk[i].Values)
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return rows, nil
		}
	}
}
