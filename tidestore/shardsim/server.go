package shardsim

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/transport"
)

// Server exposes a Cluster over the HTTP envelope protocol, so the
// HTTP transport can be exercised against simulated shards.
type Server struct {
	cluster *Cluster
	engine  *gin.Engine
}

// NewServer builds the HTTP front end for cluster.
func NewServer(cluster *Cluster) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{cluster: cluster, engine: engine}
	engine.POST("/v1/query", s.handleQuery)
	engine.POST("/v1/prepare", s.handlePrepare)
	return s
}

// Handler returns the HTTP handler, for mounting in tests via
// httptest.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

func (s *Server) handleQuery(ctx *gin.Context) {
	var env transport.QueryEnvelope
	if err := ctx.ShouldBindJSON(&env); err != nil {
		ctx.JSON(http.StatusBadRequest, &transport.BatchEnvelope{
			Error: &transport.ErrorEnvelope{Message: err.Error()},
		})
		return
	}

	fs := &fetchSpec{
		shardID:     env.ShardID,
		partitionID: env.PartitionID,
		contKey:     env.ContinuationKey,
		limit:       env.Limit,
	}
	var err error
	if env.Prepared != nil {
		fs.sp, err = decodeShardPlan(env.Prepared)
	} else {
		var cp *compiled
		cp, err = s.cluster.compile(env.Statement)
		if err == nil {
			fs.sp = cp.sp
		}
	}
	if err != nil {
		ctx.JSON(http.StatusOK, &transport.BatchEnvelope{Error: errEnvelope(err)})
		return
	}

	res, err := s.cluster.execute(fs)
	if err != nil {
		ctx.JSON(http.StatusOK, &transport.BatchEnvelope{Error: errEnvelope(err)})
		return
	}

	rep := &transport.BatchEnvelope{
		ContinuationKey:   res.ContinuationKey,
		ReachedLimit:      res.ReachedLimit,
		ReadKB:            res.ReadKB,
		ReadUnits:         res.ReadUnits,
		WriteKB:           res.WriteKB,
		InPhase1:          res.InPhase1,
		PartitionIDs:      res.PartitionIDs,
		NumResultsPerPID:  res.NumResultsPerPID,
		PartitionContKeys: res.PartitionContKeys,
	}
	if res.Topology != nil {
		rep.TopologySeqNum = res.Topology.SeqNum
		rep.ShardIDs = res.Topology.ShardIDs
	}
	rep.Rows = make([][]byte, 0, len(res.Rows))
	for _, row := range res.Rows {
		blob, err := transport.EncodeRow(row)
		if err != nil {
			ctx.JSON(http.StatusOK, &transport.BatchEnvelope{Error: errEnvelope(err)})
			return
		}
		rep.Rows = append(rep.Rows, blob)
	}
	ctx.JSON(http.StatusOK, rep)
}

func (s *Server) handlePrepare(ctx *gin.Context) {
	var env transport.PrepareEnvelope
	if err := ctx.ShouldBindJSON(&env); err != nil {
		ctx.JSON(http.StatusBadRequest, &transport.PreparedEnvelope{
			Error: &transport.ErrorEnvelope{Message: err.Error()},
		})
		return
	}
	cp, err := s.cluster.compile(env.Statement)
	if err != nil {
		ctx.JSON(http.StatusOK, &transport.PreparedEnvelope{Error: errEnvelope(err)})
		return
	}
	ctx.JSON(http.StatusOK, &transport.PreparedEnvelope{Payload: cp.payload, ReadKB: 2})
}

func errEnvelope(err error) *transport.ErrorEnvelope {
	return &transport.ErrorEnvelope{
		Message:   err.Error(),
		Retryable: tidestore.IsRetryable(err),
	}
}
