package query

import (
	"github.com/tidestore/tidestore-go/tidestore"
)

const (
	// defaultBatchSize caps the rows returned by one driver batch when
	// the request does not set its own limit.
	defaultBatchSize = 100

	// defaultMaxMemory caps the client-side memory one query execution
	// may consume for caching, sorting, grouping and duplicate
	// elimination.
	defaultMaxMemory = int64(1) << 30
)

// QueryRequest describes one query execution. The application fills the
// public fields, then passes the request repeatedly to a client until
// IsDone reports true; each pass yields one batch of results.
//
// Internal copies of the request, made by the receive iterator for its
// remote fetches, share the prepared statement and the driver with the
// original.
type QueryRequest struct {
	// Statement is the query text. Ignored when Prepared is set.
	Statement string

	// Prepared is the compiled query. Required for queries that need
	// driver-side processing.
	Prepared *PreparedStatement

	// Limit caps the rows in one batch. Zero means no application
	// limit; the driver then uses its default batch size.
	Limit int

	// MaxReadKB caps the read throughput of one batch. Zero means the
	// store default.
	MaxReadKB int

	// MaxMemoryConsumption overrides the default 1 GB client-side
	// memory cap for this execution.
	MaxMemoryConsumption int64

	// TraceLevel enables client-side execution tracing when positive.
	TraceLevel int

	contKey     []byte
	started     bool
	shardID     int
	partitionID int
	isInternal  bool
	driver      *QueryDriver
}

// NewQueryRequest returns a request for one statement with defaults.
func NewQueryRequest(statement string) *QueryRequest {
	return &QueryRequest{Statement: statement, shardID: -1, partitionID: -1}
}

// NewPreparedQueryRequest returns a request executing a prepared query.
func NewPreparedQueryRequest(prep *PreparedStatement) *QueryRequest {
	return &QueryRequest{Prepared: prep, shardID: -1, partitionID: -1}
}

func (r *QueryRequest) validate() error {
	if r.Prepared == nil && r.Statement == "" {
		return tidestore.NewIllegalArgument("query request has no statement")
	}
	if r.Limit < 0 {
		return tidestore.NewIllegalArgument("limit must not be negative")
	}
	if r.MaxReadKB < 0 {
		return tidestore.NewIllegalArgument("maxReadKB must not be negative")
	}
	if r.MaxMemoryConsumption < 0 {
		return tidestore.NewIllegalArgument(
			"maxMemoryConsumption must not be negative")
	}
	return nil
}

func (r *QueryRequest) maxMemoryBytes() int64 {
	if r.MaxMemoryConsumption > 0 {
		return r.MaxMemoryConsumption
	}
	return defaultMaxMemory
}

func (r *QueryRequest) batchSize() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return defaultBatchSize
}

// IsDone reports whether the query has returned all of its results. A
// request that was never executed counts as done only after its first
// batch.
func (r *QueryRequest) IsDone() bool {
	return r.started && r.contKey == nil
}

// ContinuationKey returns the opaque continuation of the previous
// batch, nil when the query is done.
func (r *QueryRequest) ContinuationKey() []byte { return r.contKey }

// ShardID returns the shard this internal request targets, or -1.
func (r *QueryRequest) ShardID() int { return r.shardID }

// PartitionID returns the partition this internal request targets,
// or -1.
func (r *QueryRequest) PartitionID() int { return r.partitionID }

// IsInternal reports whether this request is a fetch issued by the
// driver rather than by the application.
func (r *QueryRequest) IsInternal() bool { return r.isInternal }

func (r *QueryRequest) setShardID(id int)     { r.shardID = id }
func (r *QueryRequest) setPartitionID(id int) { r.partitionID = id }

// setContKey installs the continuation for the next batch. Clearing the
// continuation of an application request ends the execution and
// releases its driver.
func (r *QueryRequest) setContKey(contKey []byte) {
	r.contKey = contKey
	r.started = true
	if !r.isInternal && contKey == nil && r.driver != nil {
		r.driver.close()
		r.driver = nil
	}
}

// Close releases the resources of an unfinished execution. Safe to call
// at any time.
func (r *QueryRequest) Close() {
	r.setContKey(nil)
}

// copyInternal clones the request for a remote fetch, sharing the
// prepared statement and driver.
func (r *QueryRequest) copyInternal() *QueryRequest {
	return &QueryRequest{
		Statement:            r.Statement,
		Prepared:             r.Prepared,
		Limit:                r.Limit,
		MaxReadKB:            r.MaxReadKB,
		MaxMemoryConsumption: r.MaxMemoryConsumption,
		TraceLevel:           r.TraceLevel,
		shardID:              -1,
		partitionID:          -1,
		isInternal:           true,
		driver:               r.driver,
	}
}

// QueryResult is one batch of query results.
type QueryResult struct {
	rows []tidestore.Row

	readKB    int
	readUnits int
	writeKB   int

	continuationKey []byte
}

// Rows returns the rows of this batch. The batch may be empty even when
// the query is not done.
func (qr *QueryResult) Rows() []tidestore.Row { return qr.rows }

// ReadKB returns the kilobytes read while producing this batch.
func (qr *QueryResult) ReadKB() int { return qr.readKB }

// ReadUnits returns the read units consumed while producing this batch.
func (qr *QueryResult) ReadUnits() int { return qr.readUnits }

// WriteKB returns the kilobytes written while producing this batch.
func (qr *QueryResult) WriteKB() int { return qr.writeKB }

// ContinuationKey is non-nil while more batches remain.
func (qr *QueryResult) ContinuationKey() []byte { return qr.continuationKey }
