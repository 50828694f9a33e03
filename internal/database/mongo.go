package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logpkg "github.com/benvon/food-delivery/internal/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// DefaultDatabaseName is used when the connection URI names no database
const DefaultDatabaseName = "food-delivery"

// Status is the state of the database bootstrap
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// ErrNotStarted is returned by Wait when Start was never called
var ErrNotStarted = errors.New("database connection not started")

// Connector performs the one-shot MongoDB connection attempt made at startup and
// remembers its outcome. It is safe for concurrent use.
type Connector struct {
	uri     string
	dbName  string
	timeout time.Duration
	logger  *zap.Logger

	once sync.Once
	done chan struct{}

	mu     sync.RWMutex
	status Status
	client *mongo.Client
	db     *mongo.Database
	err    error
}

// NewConnector prepares a connector. No I/O happens until Start: the URI is parsed and
// validated by the connection attempt, so a bad or unresolvable URI surfaces as a failed
// status rather than a startup error.
func NewConnector(uri string, timeout time.Duration, logger *zap.Logger) *Connector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Connector{
		uri:     uri,
		dbName:  databaseFromURI(uri),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
		status:  StatusDisconnected,
	}
}

// databaseFromURI extracts the database path segment without resolving any hosts
func databaseFromURI(uri string) string {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return DefaultDatabaseName
	}
	rest, _, _ = strings.Cut(rest, "?")
	_, name, _ := strings.Cut(rest, "/")
	if name = strings.TrimSpace(name); name == "" {
		return DefaultDatabaseName
	}
	return name
}

// DatabaseName returns the database the connector will use
func (c *Connector) DatabaseName() string {
	return c.dbName
}

// Start launches the connection attempt in the background and returns immediately.
// Only the first call has an effect. There is no retry: the outcome is logged once
// and stays available through Status.
func (c *Connector) Start(ctx context.Context) {
	c.once.Do(func() {
		c.setStatus(StatusConnecting)
		go c.connect(ctx)
	})
}

func (c *Connector) connect(parent context.Context) {
	defer close(c.done)

	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	// ApplyURI records parse and SRV lookup errors; Connect returns them
	clientOptions := options.Client().
		ApplyURI(c.uri).
		SetConnectTimeout(c.timeout).
		SetServerSelectionTimeout(c.timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err == nil {
		// Ping to verify connection
		if pingErr := client.Ping(ctx, readpref.Primary()); pingErr != nil {
			_ = client.Disconnect(context.Background())
			err = pingErr
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.status = StatusFailed
		c.err = fmt.Errorf("failed to connect to MongoDB: %w", err)
		c.logger.Error("mongodb_connection_error",
			zap.String("database", c.dbName),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return
	}

	c.status = StatusConnected
	c.client = client
	c.db = client.Database(c.dbName)
	c.logger.Info("mongodb_connected", zap.String("database", c.dbName))
}

func (c *Connector) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// Status returns the current bootstrap state without doing any I/O
func (c *Connector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Database returns the connected database handle, or nil until the connection succeeds
func (c *Connector) Database() *mongo.Database {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Err returns the connection error, if the attempt failed
func (c *Connector) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Wait blocks until the connection attempt has finished or ctx is done
func (c *Connector) Wait(ctx context.Context) error {
	if !c.started() {
		return ErrNotStarted
	}
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connector) started() bool {
	select {
	case <-c.done:
		return true
	default:
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status != StatusDisconnected
}

// Close waits for a pending attempt and disconnects the client
func (c *Connector) Close(ctx context.Context) error {
	if c.started() {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect(ctx)
	c.client = nil
	c.db = nil
	c.status = StatusDisconnected
	if err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}
