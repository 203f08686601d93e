package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ClientConfig holds the settings the client needs once a driver is dialed.
type ClientConfig struct {
	Provider      string // Provider name, used in logs
	ContainerName string // Container or bucket holding every object
	Location      string // Optional location id, matched case-insensitively

	// SupportsUserMetadata overrides the driver-reported capability when set
	SupportsUserMetadata *bool

	// RefreshAfter is the number of Acquire calls served before the session is
	// rebuilt. Zero disables the refresh.
	RefreshAfter int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used by the client
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client owns the driver session shared by Storage, objects and payloads.
type Client struct {
	mu     sync.Mutex
	cfg    ClientConfig
	dial   DialFunc
	logger *slog.Logger

	current              *session
	uses                 int
	dials                int
	supportsUserMetadata bool
}

// session is one dialed driver. A replaced session stays open until every
// lease on it has been released.
type session struct {
	driver  Driver
	leases  int
	retired bool
}

// NewClient creates a client. The driver is dialed on Init or on first use.
func NewClient(cfg ClientConfig, dial DialFunc, opts ...ClientOption) (*Client, error) {
	if dial == nil {
		return nil, fmt.Errorf("%w: dial function is required", ErrConfig)
	}
	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.RefreshAfter < 0 {
		return nil, fmt.Errorf("%w: refreshAfter must not be negative", ErrConfig)
	}

	c := &Client{
		cfg:    cfg,
		dial:   dial,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Init connects to the backend. Calls after a successful Init return without
// rebuilding the session.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return nil
	}
	return c.connect(ctx)
}

// Acquire leases the live driver, rebuilding the session once RefreshAfter
// calls have been served since the last rebuild. The driver stays open until
// release is called, even if a later call replaces the session. release is
// safe to call more than once.
func (c *Client) Acquire(ctx context.Context) (Driver, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		if err := c.connect(ctx); err != nil {
			return nil, nil, err
		}
	} else if c.cfg.RefreshAfter > 0 && c.uses >= c.cfg.RefreshAfter {
		c.logger.Debug("Refreshing blob store session", "provider", c.cfg.Provider, "uses", c.uses)
		old := c.current
		if err := c.connect(ctx); err != nil {
			return nil, nil, err
		}
		c.retire(old)
	}

	c.uses++
	s := c.current
	s.leases++

	var once sync.Once
	release := func() {
		once.Do(func() { c.release(s) })
	}
	return s.driver, release, nil
}

func (c *Client) release(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.leases--
	if s.retired && s.leases == 0 {
		c.closeSession(s)
	}
}

// retire marks s as replaced and closes it when no lease is held. Callers
// hold c.mu.
func (c *Client) retire(s *session) {
	s.retired = true
	if s.leases == 0 {
		c.closeSession(s)
	}
}

func (c *Client) closeSession(s *session) {
	if err := s.driver.Close(); err != nil {
		c.logger.Warn("Failed to close previous blob store session", "provider", c.cfg.Provider, "error", err)
	}
}

// connect dials a new session, resolves the location and ensures the
// container exists. Callers hold c.mu.
func (c *Client) connect(ctx context.Context) error {
	d, err := c.dial(ctx)
	if err != nil {
		if errors.Is(err, ErrConfig) {
			return err
		}
		return &BackendError{Driver: c.cfg.Provider, Key: c.cfg.ContainerName, Op: "connect", Err: err}
	}

	location := ""
	if c.cfg.Location != "" {
		locations, err := d.Locations(ctx)
		if err != nil {
			_ = d.Close()
			return backendError(d, c.cfg.ContainerName, "list_locations", err)
		}
		for _, loc := range locations {
			if strings.EqualFold(loc.ID, c.cfg.Location) {
				location = loc.ID
				break
			}
		}
		if location == "" {
			_ = d.Close()
			return fmt.Errorf("%w: %s location not found in blob store", ErrConfig, c.cfg.Location)
		}
	}

	if err := d.CreateContainer(ctx, c.cfg.ContainerName, location); err != nil {
		_ = d.Close()
		return backendError(d, c.cfg.ContainerName, "create_container", err)
	}

	c.current = &session{driver: d}
	c.uses = 0
	c.dials++
	if c.cfg.SupportsUserMetadata != nil {
		c.supportsUserMetadata = *c.cfg.SupportsUserMetadata
	} else {
		c.supportsUserMetadata = d.SupportsUserMetadata()
	}
	return nil
}

// ContainerName returns the container holding every object.
func (c *Client) ContainerName() string {
	return c.cfg.ContainerName
}

// SupportsUserMetadata reports whether payload metadata is stored as native
// user metadata. When false, sidecar blobs are written. Before the first
// connection only an explicit override is reported.
func (c *Client) SupportsUserMetadata() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil && c.cfg.SupportsUserMetadata != nil {
		return *c.cfg.SupportsUserMetadata
	}
	return c.supportsUserMetadata
}

// Sessions returns how many driver sessions have been dialed.
func (c *Client) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

// Close releases the backend session. A session still leased is closed when
// its last lease is released.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	s := c.current
	c.current = nil
	c.uses = 0

	s.retired = true
	if s.leases > 0 {
		return nil
	}
	return s.driver.Close()
}
