package query

import (
	"github.com/tidestore/tidestore-go/tidestore"
)

// Preparer compiles a statement into a PreparedStatement. The HTTP
// transport and the shard simulator both implement it.
type Preparer interface {
	Prepare(statement string) (*PreparedStatement, error)
}

// Client is the application-facing entry point for queries. It prepares
// statements through a Preparer and executes batches through an
// Executor, inserting a QueryDriver whenever the compiled plan needs
// client-side processing.
type Client struct {
	executor Executor
	preparer Preparer
}

// NewClient returns a client over the given transport.
func NewClient(executor Executor, preparer Preparer) *Client {
	return &Client{executor: executor, preparer: preparer}
}

// Prepare compiles a statement.
func (c *Client) Prepare(statement string) (*PreparedStatement, error) {
	if statement == "" {
		return nil, tidestore.NewIllegalArgument("statement must be non-empty")
	}
	return c.preparer.Prepare(statement)
}

// Query produces the next batch of results for req. Call it repeatedly
// until req.IsDone reports true.
func (c *Client) Query(req *QueryRequest) (*QueryResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.IsDone() {
		return nil, tidestore.NewIllegalArgument("query execution is already done")
	}

	if req.Prepared == nil {
		prep, err := c.Prepare(req.Statement)
		if err != nil {
			return nil, err
		}
		req.Prepared = prep
	}

	if req.Prepared.requiresDriver() {
		if req.driver == nil {
			if _, err := NewQueryDriver(c.executor, req); err != nil {
				return nil, err
			}
		}
		result := &QueryResult{}
		if err := req.driver.Compute(result); err != nil {
			return nil, err
		}
		return result, nil
	}

	// All processing happens in the store; relay the batch as is.
	batch, err := c.executor.Execute(req)
	if err != nil {
		return nil, err
	}
	req.setContKey(batch.ContinuationKey)
	rows := batch.Rows
	for i, row := range rows {
		rows[i] = tidestore.ConvertToNull(row).(tidestore.Row)
	}
	return &QueryResult{
		rows:            rows,
		readKB:          batch.ReadKB,
		readUnits:       batch.ReadUnits,
		writeKB:         batch.WriteKB,
		continuationKey: batch.ContinuationKey,
	}, nil
}
