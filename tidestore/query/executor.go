package query

import (
	"github.com/tidestore/tidestore-go/tidestore"
)

// Executor sends one query batch request to the store and returns its
// results. The HTTP transport implements it for real deployments and
// the shard simulator implements it in-process for tests and tooling.
type Executor interface {
	Execute(req *QueryRequest) (*BatchResult, error)
}

// BatchResult is one batch of rows returned by the store for an
// internal fetch, together with continuation and consumption metadata.
type BatchResult struct {
	Rows            []tidestore.Row
	ContinuationKey []byte

	// ReachedLimit is set when the store stopped because the batch hit
	// its size or read limit rather than exhausting the data.
	ReachedLimit bool

	ReadKB    int
	ReadUnits int
	WriteKB   int

	// Topology is the store topology as of this response. A sequence
	// number ahead of the client's triggers scanner reconciliation.
	Topology *tidestore.TopologyInfo

	// Phase-1 fields for sorting all-partitions queries. Rows are
	// grouped by partition: NumResultsPerPID[i] of them belong to
	// PartitionIDs[i], whose own continuation is PartitionContKeys[i].
	InPhase1          bool
	PartitionIDs      []int
	NumResultsPerPID  []int
	PartitionContKeys [][]byte
}
