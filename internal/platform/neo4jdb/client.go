package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
)

type Config struct {
	URI            string
	User           string
	Password       string
	Database       string
	TimeoutSeconds int
	MaxPoolSize    int
}

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func New(cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, fmt.Errorf("neo4jdb: uri required")
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = "neo4j"
	}
	timeoutSec := cfg.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	auth := neo4j.BasicAuth(user, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: strings.TrimSpace(cfg.Database),
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

// managedTx adapts a neo4j managed transaction to graph.Tx.
type managedTx struct {
	tx neo4j.ManagedTransaction
}

func (m managedTx) Run(ctx context.Context, cypher string, params map[string]any) error {
	res, err := m.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// ExecuteWrite commits work as one atomic write transaction. Implements
// graph.TxRunner.
func (c *Client) ExecuteWrite(ctx context.Context, work func(ctx context.Context, tx graph.Tx) error) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(ctx, managedTx{tx: tx})
	})
	return err
}

// Collect runs a read query and returns every record as a map.
func (c *Client) Collect(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]map[string]any), nil
}

// CountValue runs a read query expected to return a single integer column.
func (c *Client) CountValue(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	rows, err := c.Collect(ctx, cypher, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		if n, ok := v.(int64); ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("neo4jdb: no integer column in result")
}

// RunDDL executes schema DDL in auto-commit mode; constraint and index
// statements cannot run inside managed transactions. Implements
// graph.DDLRunner.
func (c *Client) RunDDL(ctx context.Context, stmt string) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, stmt, nil)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

// IsConstraintViolation reports whether err is a duplicate-unique-key
// failure from malformed input, as opposed to a transient store error.
func IsConstraintViolation(err error) bool {
	var ne *db.Neo4jError
	if errors.As(err, &ne) {
		return ne.Code == constraintViolationCode
	}
	return false
}

// IsTransient reports whether err is worth retrying: connectivity drops,
// cluster leader changes, and server-flagged transient failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	var ne *db.Neo4jError
	if errors.As(err, &ne) {
		if strings.HasPrefix(ne.Code, "Neo.TransientError") {
			return true
		}
		if ne.Code == "Neo.ClientError.Cluster.NotALeader" {
			return true
		}
	}
	return false
}
