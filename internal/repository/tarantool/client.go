// Package tarantool implements the durable repositories on top of
// Tarantool stored procedures.
package tarantool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/chris-fellows/cf-message-queue-sub000/pkg/logger"
)

// Config represents Tarantool connection configuration
type Config struct {
	Address  string
	User     string
	Password string
	Timeout  time.Duration
}

// Conn is the shared Tarantool connection behind every repository.
type Conn struct {
	conn   *tarantool.Connection
	logger *logger.Logger
	mu     sync.RWMutex
	closed bool
}

// Connect opens the Tarantool connection.
func Connect(ctx context.Context, cfg *Config, log *logger.Logger) (*Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	dialer := tarantool.NetDialer{
		Address:  cfg.Address,
		User:     cfg.User,
		Password: cfg.Password,
	}
	opts := tarantool.Opts{
		Timeout: cfg.Timeout,
	}

	conn, err := tarantool.Connect(ctx, dialer, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Tarantool: %w", err)
	}

	return &Conn{conn: conn, logger: log}, nil
}

// Close closes the Tarantool connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Ping checks if the connection to Tarantool is alive.
func (c *Conn) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}
	_, err := c.conn.Ping()
	return err
}

// call executes a Tarantool stored procedure.
func (c *Conn) call(functionName string, args []interface{}) ([]interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("connection is closed")
	}

	req := tarantool.NewCall17Request(functionName).Args(args)
	future := c.conn.Do(req)
	resp, err := future.Get()
	if err != nil {
		return nil, err
	}
	return resp, nil
}
