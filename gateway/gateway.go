package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
)

// Config is the process-wide gateway configuration. It is replaced as a whole
// by Init; successive configurations are never merged.
type Config struct {
	// URL is the base address every operation path is appended to.
	URL string
	// GetAuthorization resolves credentials for security requirements. It is
	// required for any operation that declares one.
	GetAuthorization AuthorizationFunc
	// Transport executes requests. Defaults to http.DefaultClient.
	Transport Doer
	// Dispatch, when set, receives lifecycle notifications for every Call.
	Dispatch Dispatch
	// UserAgent is sent when non-empty.
	UserAgent string
	// Logger traces call state transitions at debug level. Defaults to a
	// discarding logger.
	Logger *slog.Logger
}

// Gateway executes operations against the configured API. It is safe for
// concurrent use; each call works on the configuration that was current when
// it started.
type Gateway struct {
	cfg atomic.Pointer[Config]
}

// New returns a gateway initialized with cfg.
func New(cfg Config) *Gateway {
	g := &Gateway{}
	g.Init(cfg)
	return g
}

// Init atomically replaces the configuration. Calls already in flight keep
// the configuration they started with.
func (g *Gateway) Init(cfg Config) {
	c := cfg
	g.cfg.Store(&c)
}

// Config returns a copy of the current configuration.
func (g *Gateway) Config() Config {
	return g.snapshot()
}

func (g *Gateway) snapshot() Config {
	if c := g.cfg.Load(); c != nil {
		return *c
	}
	return Config{}
}

// State is a step of the call lifecycle.
type State int

const (
	StateIdle State = iota
	StateAuthorizing
	StateBuilding
	StateInFlight
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAuthorizing:
		return "AUTHORIZING"
	case StateBuilding:
		return "BUILDING"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Call executes op with params and decodes a success payload into out. out
// may be nil, a *NoContent, a *string, a *[]byte or any JSON target.
//
// When the configuration carries a Dispatch function the call is wrapped in
// start/success/error notifications.
func (g *Gateway) Call(ctx context.Context, op Operation, params Params, out any) error {
	cfg := g.snapshot()
	if cfg.Dispatch != nil {
		return g.dispatchCall(ctx, cfg, cfg.Dispatch, op, params, out)
	}
	return g.call(ctx, cfg, op, params, out)
}

type call struct {
	op    Operation
	state State
	log   *slog.Logger
}

func (c *call) to(next State) {
	c.log.Debug("call transition", "from", c.state.String(), "to", next.String())
	c.state = next
}

func (c *call) fail(err error) error {
	c.to(StateFailed)
	c.log.Debug("call failed", "error", err)
	return err
}

// authorize tries the security alternatives in order and returns the
// credentials of the first one that fully resolves. When every alternative
// fails the error of the first is returned.
func (c *call) authorize(ctx context.Context, cfg Config) (http.Header, url.Values, error) {
	if len(c.op.Security) == 0 {
		return http.Header{}, url.Values{}, nil
	}
	var first error
	for i, alt := range c.op.Security {
		header, query := http.Header{}, url.Values{}
		err := c.authorizeAll(ctx, cfg, alt, header, query)
		if err == nil {
			return header, query, nil
		}
		c.log.Debug("security alternative rejected", "alternative", i, "error", err)
		if first == nil {
			first = err
		}
	}
	return nil, nil, first
}

func (c *call) authorizeAll(ctx context.Context, cfg Config, alt SecurityAlternative, header http.Header, query url.Values) error {
	for _, req := range alt {
		id := ""
		if req.Scheme != nil {
			id = req.Scheme.SchemeID()
		}
		if cfg.GetAuthorization == nil {
			return &AuthorizationError{OperationID: c.op.ID, SchemeID: id, Err: ErrNoAuthorizer}
		}
		cred, err := cfg.GetAuthorization(ctx, Security{ID: id, Scopes: append([]string(nil), req.Scopes...)})
		if err != nil {
			return &AuthorizationError{OperationID: c.op.ID, SchemeID: id, Err: err}
		}
		if cred == nil {
			return &AuthorizationError{OperationID: c.op.ID, SchemeID: id, Err: errNilCredential}
		}
		if err := applyCredential(req.Scheme, cred, header, query); err != nil {
			return &AuthorizationError{OperationID: c.op.ID, SchemeID: id, Err: err}
		}
	}
	return nil
}

func (g *Gateway) call(ctx context.Context, cfg Config, op Operation, params Params, out any) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &call{op: op, state: StateIdle, log: logger.With("operation", op.ID)}

	c.to(StateAuthorizing)
	header, query, err := c.authorize(ctx, cfg)
	if err != nil {
		return c.fail(err)
	}

	c.to(StateBuilding)
	httpReq, err := buildRequest(ctx, cfg, op, params, header, query)
	if err != nil {
		return c.fail(err)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultClient
	}

	c.to(StateInFlight)
	resp, err := transport.Do(httpReq)
	if err != nil {
		return c.fail(&TransportError{OperationID: op.ID, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(&RequestError{OperationID: op.ID, Status: resp.StatusCode, Body: readErrorBody(resp)})
	}
	if err := decodeResponse(resp, out); err != nil {
		return c.fail(&RequestError{OperationID: op.ID, Status: resp.StatusCode, Err: err})
	}
	c.to(StateSucceeded)
	return nil
}
