package memory

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// defaultMaxAttempts bounds each store call: one initial try plus two
	// retries.
	defaultMaxAttempts = 3

	// defaultInitialBackoff is the delay before the first retry; subsequent
	// delays double.
	defaultInitialBackoff = 500 * time.Millisecond
)

// Client wraps a Driver with bounded retries, error classification, and
// structured attempt logging. Every failure surfaced by a Client method is a
// *ClassifiedError carrying the underlying cause.
type Client struct {
	driver         Driver
	logger         *zap.Logger
	maxAttempts    int
	initialBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxAttempts overrides the total attempt budget (initial + retries).
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithInitialBackoff overrides the delay before the first retry.
func WithInitialBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// NewClient creates a retrying client over the given driver.
func NewClient(driver Driver, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		driver:         driver,
		logger:         logger,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add persists messages as one memory, retrying per the client policy.
func (c *Client) Add(ctx context.Context, messages []Message, opts AddOptions) (*AddResult, error) {
	var result *AddResult
	err := c.do(ctx, "add", func(ctx context.Context) error {
		var err error
		result, err = c.driver.Add(ctx, messages, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Search runs a semantic query, retrying per the client policy.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Memory, error) {
	var results []Memory
	err := c.do(ctx, "search", func(ctx context.Context) error {
		var err error
		results, err = c.driver.Search(ctx, query, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetAll lists all memories for a user, retrying per the client policy.
func (c *Client) GetAll(ctx context.Context, userID string) ([]Memory, error) {
	var results []Memory
	err := c.do(ctx, "get_all", func(ctx context.Context) error {
		var err error
		results, err = c.driver.GetAll(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes one memory by ID, retrying per the client policy.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", func(ctx context.Context) error {
		return c.driver.Delete(ctx, id)
	})
}

// DeleteAll removes every memory for a user, retrying per the client policy.
func (c *Client) DeleteAll(ctx context.Context, userID string) error {
	return c.do(ctx, "delete_all", func(ctx context.Context) error {
		return c.driver.DeleteAll(ctx, userID)
	})
}

// Close releases the underlying driver.
func (c *Client) Close() error {
	return c.driver.Close()
}

// do executes fn with the retry policy: maxAttempts total attempts with
// exponential backoff between them. The terminal error is always a
// *ClassifiedError.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempt := 0

	operation := func() error {
		attempt++
		c.logger.Debug("memory store call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)

		err := fn(ctx)
		if err == nil {
			return nil
		}

		classified := Classify(op, err)
		// Not-found is a definitive answer, not a transient failure.
		if errors.Is(err, ErrNotFound) {
			return backoff.Permanent(error(classified))
		}
		if attempt >= c.maxAttempts {
			return backoff.Permanent(error(classified))
		}

		c.logger.Warn("memory store call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.String("kind", string(classified.Kind)),
			zap.Error(err),
		)
		return classified
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	if err != nil {
		classified := Classify(op, err)
		c.logger.Error("memory store call exhausted retries",
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.String("kind", string(classified.Kind)),
			zap.Error(classified.Err),
		)
		return classified
	}

	c.logger.Debug("memory store call succeeded",
		zap.String("op", op),
		zap.Int("attempts", attempt),
	)
	return nil
}
