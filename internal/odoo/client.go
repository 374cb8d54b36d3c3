// Package odoo adapts an Odoo instance reached over XML-RPC to the
// core.TaskStore port. Remote values are coerced into typed records once,
// here, so core never checks for optional fields.
package odoo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kolo/xmlrpc"

	"github.com/edwh/otk/pkg/models"
)

// ErrAuthFailed is returned when the server rejects the configured credentials.
var ErrAuthFailed = errors.New("odoo authentication failed")

// caller is the part of an XML-RPC client used here. *xmlrpc.Client
// satisfies it through its embedded *rpc.Client.
type caller interface {
	Go(serviceMethod string, args any, reply any, done chan *rpc.Call) *rpc.Call
	Close() error
}

// Executor runs model methods through execute_kw.
type Executor interface {
	ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, reply any) error
}

// Client is an authenticated session against one Odoo database. Calls on a
// Client are serialized; open one Client per concurrent request.
type Client struct {
	cfg    models.OdooConfig
	common caller
	object caller
	logger *log.Logger

	mu  sync.Mutex
	uid int64
}

// Endpoint returns the XML-RPC URL of service ("common" or "object").
func Endpoint(cfg models.OdooConfig, service string) string {
	scheme := "https"
	if cfg.Protocol == "xml-rpc" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d/xmlrpc/2/%s", scheme, cfg.Host, cfg.Port, service)
}

// Dial connects to the instance in cfg and authenticates. logger may be nil.
func Dial(ctx context.Context, cfg models.OdooConfig, logger *log.Logger) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConnsPerHost:   2,
	}

	common, err := xmlrpc.NewClient(Endpoint(cfg, "common"), transport)
	if err != nil {
		return nil, fmt.Errorf("creating common client: %w", err)
	}
	object, err := xmlrpc.NewClient(Endpoint(cfg, "object"), transport)
	if err != nil {
		_ = common.Close()
		return nil, fmt.Errorf("creating object client: %w", err)
	}

	c := newClient(cfg, common, object, logger)
	if err := c.authenticate(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func newClient(cfg models.OdooConfig, common, object caller, logger *log.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, common: common, object: object, logger: logger}
}

// UID returns the authenticated user id.
func (c *Client) UID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reply any
	args := []any{c.cfg.Database, c.cfg.User, c.cfg.Password, map[string]any{}}
	if err := c.call(ctx, c.common, "authenticate", args, &reply); err != nil {
		return fmt.Errorf("authenticating %s@%s: %w", c.cfg.User, c.cfg.Host, err)
	}

	uid, ok := reply.(int64)
	if !ok || uid <= 0 {
		return fmt.Errorf("authenticating %s@%s: %w", c.cfg.User, c.cfg.Host, ErrAuthFailed)
	}
	c.uid = uid
	c.debug("authenticated", "host", c.cfg.Host, "db", c.cfg.Database, "uid", uid)
	return nil
}

// ExecuteKw calls method on model with positional args and keyword kwargs.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, reply any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if args == nil {
		args = []any{}
	}
	params := []any{c.cfg.Database, c.uid, c.cfg.Password, model, method, args, kwargs}

	start := time.Now()
	err := c.call(ctx, c.object, "execute_kw", params, reply)
	c.debug("execute_kw", "model", model, "method", method, "took", time.Since(start), "err", err)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return nil
}

// call issues one RPC bounded by ctx and the configured timeout. When the
// deadline passes first the request is abandoned; its reply is discarded.
func (c *Client) call(ctx context.Context, cl caller, method string, args []any, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	pending := cl.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-pending.Done:
		return done.Error
	}
}

// Close releases the underlying connections.
func (c *Client) Close() error {
	return errors.Join(c.common.Close(), c.object.Close())
}

func (c *Client) debug(msg string, keyvals ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keyvals...)
	}
}
