package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/query"
	"github.com/tidestore/tidestore-go/tidestore/wire"
)

// Config holds the connection settings for one store endpoint.
type Config struct {
	// Endpoint is the base URL of the store proxy, e.g.
	// "http://localhost:8340".
	Endpoint string

	// RequestTimeout bounds one round trip, limiter wait included.
	RequestTimeout time.Duration

	// RateLimit caps outgoing requests per second. Zero disables the
	// limiter.
	RateLimit float64

	// Burst is the limiter burst size when RateLimit is set.
	Burst int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		RequestTimeout: 30 * time.Second,
		Burst:          1,
	}
}

// HTTPExecutor implements query.Executor and query.Preparer against a
// store endpoint speaking the JSON envelope. Row payloads inside the
// envelope stay in the binary wire format.
type HTTPExecutor struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New returns an executor for cfg, filling in defaults for zero fields.
func New(cfg Config) (*HTTPExecutor, error) {
	if cfg.Endpoint == "" {
		return nil, tidestore.NewIllegalArgument("endpoint must be non-empty")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	e := &HTTPExecutor{cfg: cfg, client: cfg.HTTPClient}
	if e.client == nil {
		e.client = &http.Client{}
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return e, nil
}

// QueryEnvelope is the request body of POST /v1/query.
type QueryEnvelope struct {
	RequestID       string `json:"requestId"`
	Statement       string `json:"statement,omitempty"`
	Prepared        []byte `json:"prepared,omitempty"`
	ContinuationKey []byte `json:"continuationKey,omitempty"`
	ShardID         int    `json:"shardId"`
	PartitionID     int    `json:"partitionId"`
	Limit           int    `json:"limit,omitempty"`
	MaxReadKB       int    `json:"maxReadKB,omitempty"`
	IsInternal      bool   `json:"isInternal,omitempty"`
	TraceLevel      int    `json:"traceLevel,omitempty"`
}

// BatchEnvelope is the response body of POST /v1/query. Rows are
// wire-encoded field values, one blob per row.
type BatchEnvelope struct {
	Rows            [][]byte `json:"rows"`
	ContinuationKey []byte   `json:"continuationKey,omitempty"`
	ReachedLimit    bool     `json:"reachedLimit,omitempty"`
	ReadKB          int      `json:"readKB,omitempty"`
	ReadUnits       int      `json:"readUnits,omitempty"`
	WriteKB         int      `json:"writeKB,omitempty"`

	TopologySeqNum int   `json:"topologySeqNum"`
	ShardIDs       []int `json:"shardIds,omitempty"`

	InPhase1          bool     `json:"inPhase1,omitempty"`
	PartitionIDs      []int    `json:"partitionIds,omitempty"`
	NumResultsPerPID  []int    `json:"numResultsPerPid,omitempty"`
	PartitionContKeys [][]byte `json:"partitionContKeys,omitempty"`

	Error *ErrorEnvelope `json:"error,omitempty"`
}

type ErrorEnvelope struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// PrepareEnvelope is the request body of POST /v1/prepare; the reply
// carries the wire-encoded prepared statement.
type PrepareEnvelope struct {
	RequestID string `json:"requestId"`
	Statement string `json:"statement"`
}

type PreparedEnvelope struct {
	Payload []byte         `json:"payload"`
	ReadKB  int            `json:"readKB,omitempty"`
	Error   *ErrorEnvelope `json:"error,omitempty"`
}

// Execute sends one query sub-request and decodes its batch.
func (e *HTTPExecutor) Execute(req *query.QueryRequest) (*query.BatchResult, error) {
	env := &QueryEnvelope{
		RequestID:       uuid.NewString(),
		ContinuationKey: req.ContinuationKey(),
		ShardID:         req.ShardID(),
		PartitionID:     req.PartitionID(),
		Limit:           req.Limit,
		MaxReadKB:       req.MaxReadKB,
		IsInternal:      req.IsInternal(),
		TraceLevel:      req.TraceLevel,
	}
	if req.Prepared != nil {
		env.Prepared = req.Prepared.Statement()
	} else {
		env.Statement = req.Statement
	}

	var batch BatchEnvelope
	if err := e.post("/v1/query", env.RequestID, env, &batch); err != nil {
		return nil, err
	}
	if batch.Error != nil {
		return nil, envelopeError(batch.Error)
	}
	return DecodeBatch(&batch)
}

// Prepare compiles a statement on the store.
func (e *HTTPExecutor) Prepare(statement string) (*query.PreparedStatement, error) {
	env := &PrepareEnvelope{RequestID: uuid.NewString(), Statement: statement}
	var rep PreparedEnvelope
	if err := e.post("/v1/prepare", env.RequestID, env, &rep); err != nil {
		return nil, err
	}
	if rep.Error != nil {
		return nil, envelopeError(rep.Error)
	}
	return query.DeserializePreparedStatement(wire.NewReader(rep.Payload), statement)
}

func (e *HTTPExecutor) post(path, requestID string, body, reply any) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return tidestore.NewRetryable(err, "rate limiter wait failed")
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		// Network failures and timeouts are worth retrying.
		return tidestore.NewRetryable(err, "request %s failed", requestID)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return tidestore.NewRetryable(nil, "store busy: %s", resp.Status)
	default:
		return fmt.Errorf("store returned %s for request %s", resp.Status, requestID)
	}
	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func envelopeError(ee *ErrorEnvelope) error {
	if ee.Retryable {
		return tidestore.NewRetryable(nil, "%s", ee.Message)
	}
	return fmt.Errorf("query rejected: %s", ee.Message)
}

func DecodeBatch(env *BatchEnvelope) (*query.BatchResult, error) {
	res := &query.BatchResult{
		ContinuationKey:   env.ContinuationKey,
		ReachedLimit:      env.ReachedLimit,
		ReadKB:            env.ReadKB,
		ReadUnits:         env.ReadUnits,
		WriteKB:           env.WriteKB,
		InPhase1:          env.InPhase1,
		PartitionIDs:      env.PartitionIDs,
		NumResultsPerPID:  env.NumResultsPerPID,
		PartitionContKeys: env.PartitionContKeys,
	}
	if env.ShardIDs != nil {
		res.Topology = &tidestore.TopologyInfo{
			SeqNum:   env.TopologySeqNum,
			ShardIDs: env.ShardIDs,
		}
	}
	res.Rows = make([]tidestore.Row, 0, len(env.Rows))
	for _, blob := range env.Rows {
		v, err := wire.NewReader(blob).ReadFieldValue()
		if err != nil {
			return nil, fmt.Errorf("decoding result row: %w", err)
		}
		row, ok := v.(tidestore.Row)
		if !ok {
			return nil, tidestore.NewIllegalState("result row decodes to %T, not a record", v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// EncodeRow wire-encodes one row for the batch envelope. The server
// side of the envelope and tests share it.
func EncodeRow(row tidestore.Row) ([]byte, error) {
	w := wire.NewWriter()
	if err := w.WriteFieldValue(row); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

var (
	_ query.Executor = (*HTTPExecutor)(nil)
	_ query.Preparer = (*HTTPExecutor)(nil)
)
