package tidestore

// TopologyInfo is the shard layout known to the driver: a sequence
// number that increases strictly on every elastic resize, plus the
// current shard id set. The server piggybacks it on query responses.
type TopologyInfo struct {
	SeqNum   int
	ShardIDs []int
}

// NumShards returns the number of shards.
func (t *TopologyInfo) NumShards() int { return len(t.ShardIDs) }

// ShardID returns the shard id at position i.
func (t *TopologyInfo) ShardID(i int) int { return t.ShardIDs[i] }

// Same reports whether other describes the same topology. Sequence
// numbers are strictly monotonic, so equality of sequence numbers is
// equality of topologies.
func (t *TopologyInfo) Same(other *TopologyInfo) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.SeqNum == other.SeqNum
}
