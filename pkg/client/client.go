// Package client is the owner side of an oblivious tree. A Client holds the
// tree, position map and stash, performs every access locally and mirrors the
// encrypted tree to a passive storage server.
//
// Each access reads one node and writes at most two, so the server learns
// which node was read. Cover relocations only decouple the number of writes
// from the number of caller operations.
//
// With AutoSync, Get, Put and Remove are rolled back when the push to storage
// fails. Initialize and Evict are not: their local changes are kept, the push
// error is returned and Sync can be retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/noise"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
	"github.com/mundrapranay/oblivious-tree/internal/store"
)

var (
	ErrInvalidConfig = errors.New("invalid client config")
	ErrNoStorage     = errors.New("no storage configured")
	// ErrStaleReplica is returned by Restore when the stored tree does not
	// hold a bucket for every key in the position map.
	ErrStaleReplica = errors.New("stored tree does not match position map")
)

// Config holds the client parameters.
type Config struct {
	// Depth is L; the tree has 2^(L+1)-1 nodes.
	Depth         int
	StashCapacity int
	// BitLength is the key size; 0 selects the group default.
	BitLength int
	Threshold int
	Shares    int
	// CoverLambda enables cover relocations after each access when > 0.
	// Smaller values relocate more keys on average.
	CoverLambda float64
	// MaxCover caps the relocations per access.
	MaxCover int
	// AutoSync pushes the tree to storage inside every access.
	AutoSync bool
}

// DefaultConfig returns a small tree with a 2-of-3 key.
func DefaultConfig() Config {
	return Config{
		Depth:         4,
		StashCapacity: 16,
		Threshold:     2,
		Shares:        3,
		MaxCover:      2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Depth < 0 || c.Depth > oram.MaxDepth {
		return fmt.Errorf("%w: depth %d must be in [0,%d]", ErrInvalidConfig, c.Depth, oram.MaxDepth)
	}
	if c.StashCapacity < 0 {
		return fmt.Errorf("%w: negative stash capacity", ErrInvalidConfig)
	}
	if c.BitLength != 0 && c.BitLength != crypto.GroupBits {
		return fmt.Errorf("%w: bit length %d", ErrInvalidConfig, c.BitLength)
	}
	if c.Threshold < 1 || c.Shares < c.Threshold {
		return fmt.Errorf("%w: threshold=%d shares=%d", ErrInvalidConfig, c.Threshold, c.Shares)
	}
	if c.CoverLambda < 0 || c.MaxCover < 0 {
		return fmt.Errorf("%w: cover parameters must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithRand sets the source of location choices and of the cover relocation
// counts. Without it locations come from a ChaCha8 generator and counts from
// the differential-privacy library's secure source.
func WithRand(rng oram.Rand) Option {
	return func(c *Client) { c.rng = rng }
}

// WithStorage mirrors the tree to s.
func WithStorage(s Storage) Option {
	return func(c *Client) { c.storage = s }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPositionMap uses pm instead of an in-memory map, for example a
// BoltPositionMap that survives restarts.
func WithPositionMap(pm oram.PositionMap) Option {
	return func(c *Client) { c.posMap = pm }
}

// WithScheme uses an existing key instead of generating one.
func WithScheme(s *crypto.Scheme) Option {
	return func(c *Client) { c.scheme = s }
}

// Client performs oblivious accesses against its own state. All methods are
// safe for concurrent use; accesses are serialized.
type Client struct {
	mu sync.Mutex

	cfg     Config
	st      *oram.State
	scheme  *crypto.Scheme
	rng     oram.Rand
	cover   *noise.Geometric
	storage Storage
	posMap  oram.PositionMap
	logger  hclog.Logger
}

// New builds a client with an empty tree.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	c.logger = c.logger.Named("client")
	var noiseOpts []noise.Option
	if c.rng != nil {
		noiseOpts = append(noiseOpts, noise.WithSource(noise.IntSource{IntN: c.rng.IntN}))
	} else {
		c.rng = oram.NewRand()
	}
	if c.scheme == nil {
		s, err := crypto.NewScheme(cfg.BitLength, cfg.Threshold, cfg.Shares)
		if err != nil {
			return nil, err
		}
		c.scheme = s
	}
	if cfg.CoverLambda > 0 && cfg.MaxCover > 0 {
		g, err := noise.NewGeometric(cfg.CoverLambda, noiseOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		c.cover = g
	}

	st, err := oram.NewStateWithMap(cfg.Depth, cfg.StashCapacity, c.posMap)
	if err != nil {
		return nil, err
	}
	c.st = st
	c.logger.Debug("client ready", "depth", cfg.Depth, "nodes", st.Tree.Size(), "stash", cfg.StashCapacity)
	return c, nil
}

// PublicKey returns the key the tree is encrypted under.
func (c *Client) PublicKey() *crypto.PublicKey {
	return c.scheme.PublicKey()
}

// State exposes the client's state for inspection. It must not be modified
// while the client is in use.
func (c *Client) State() *oram.State {
	return c.st
}

// Initialize replaces the tree contents with items. With AutoSync the new
// tree is pushed to storage; if that fails the local tree is kept and Sync
// can be retried.
func (c *Client) Initialize(ctx context.Context, items []oram.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := oram.Initialize(c.st, c.scheme, c.rng, items); err != nil {
		return err
	}
	c.logger.Info("tree initialized", "items", len(items))
	if c.cfg.AutoSync && c.storage != nil {
		return c.push(ctx)
	}
	return nil
}

// Get returns the value for key and whether it was present.
func (c *Client) Get(ctx context.Context, key oram.Key) ([]byte, bool, error) {
	res, err := c.access(ctx, oram.OpGet, key, nil)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Found, nil
}

// Put stores value under key, moving it to a fresh location.
func (c *Client) Put(ctx context.Context, key oram.Key, value []byte) error {
	_, err := c.access(ctx, oram.OpPut, key, value)
	return err
}

// Remove deletes key and reports whether it was present.
func (c *Client) Remove(ctx context.Context, key oram.Key) (bool, error) {
	res, err := c.access(ctx, oram.OpRemove, key, nil)
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

func (c *Client) access(ctx context.Context, op oram.Op, key oram.Key, value []byte) (oram.Result, error) {
	if err := ctx.Err(); err != nil {
		return oram.Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, res, err := oram.Prepare(c.st, c.scheme, c.rng, op, key, value)
	if err != nil {
		return oram.Result{}, err
	}
	txs := append([]*oram.Tx{tx}, c.relocate(key)...)

	if c.cfg.AutoSync && c.storage != nil {
		if err := c.push(ctx); err != nil {
			return oram.Result{}, rollback(txs, err)
		}
	}
	for _, tx := range txs {
		tx.Commit()
	}
	c.logger.Trace("access", "op", op, "touched", len(res.Touched), "cover", len(txs)-1)
	return res, nil
}

// relocate moves a noisy number of random resident keys to fresh locations so
// that writes do not line up one-to-one with caller operations. Each key moves
// at most once per access and the accessed key never does. Failures stop the
// relocation without failing the access.
func (c *Client) relocate(accessed oram.Key) []*oram.Tx {
	if c.cover == nil {
		return nil
	}
	n := c.cover.Magnitude(c.cfg.MaxCover)
	moved := map[oram.Key]bool{accessed: true}
	var txs []*oram.Tx
	for i := 0; i < n; i++ {
		var keys []oram.Key
		for _, k := range c.st.Map.Keys() {
			if !moved[k] {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			break
		}
		k := keys[c.rng.IntN(len(keys))]
		moved[k] = true

		read, res, err := oram.Prepare(c.st, c.scheme, c.rng, oram.OpGet, k, nil)
		if err != nil {
			c.logger.Warn("cover read failed", "error", err)
			break
		}
		read.Commit()

		tx, _, err := oram.Prepare(c.st, c.scheme, c.rng, oram.OpPut, k, res.Value)
		if err != nil {
			c.logger.Warn("cover relocation failed", "error", err)
			break
		}
		txs = append(txs, tx)
	}
	return txs
}

// rollback undoes txs newest first and joins any failure with cause.
func rollback(txs []*oram.Tx, cause error) error {
	errs := []error{cause}
	for i := len(txs) - 1; i >= 0; i-- {
		if err := txs[i].Rollback(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Evict writes stashed blocks back into the tree and returns how many moved.
// With AutoSync a failed push is returned but the evicted blocks stay placed.
func (c *Client) Evict(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := oram.Evict(c.st, c.scheme, c.rng)
	if n > 0 {
		c.logger.Info("evicted stash entries", "count", n)
	}
	if n > 0 && c.cfg.AutoSync && c.storage != nil {
		if perr := c.push(ctx); perr != nil {
			return n, errors.Join(err, perr)
		}
	}
	return n, err
}

// Sync pushes the current tree to storage.
func (c *Client) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.push(ctx)
}

func (c *Client) push(ctx context.Context) error {
	if c.storage == nil {
		return ErrNoStorage
	}
	snap, err := store.NewTreeSnapshot(c.st.Tree, c.scheme.PublicKey())
	if err != nil {
		return err
	}
	if err := c.storage.StoreTree(ctx, snap); err != nil {
		return fmt.Errorf("failed to sync tree: %w", err)
	}
	c.logger.Debug("tree synced", "depth", snap.Depth)
	return nil
}

// Restore replaces the local tree with the one held by storage, level by
// level. It is meant for a client restarting with a persistent position map
// and its existing scheme. The stash is cleared.
func (c *Client) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage == nil {
		return ErrNoStorage
	}
	tree, err := oram.NewTree(c.cfg.Depth)
	if err != nil {
		return err
	}
	for l := 0; l <= c.cfg.Depth; l++ {
		level, err := c.storage.EncryptedLevel(ctx, l)
		if err != nil {
			return err
		}
		if len(level) != 1<<l {
			return fmt.Errorf("%w: level %d has %d buckets", ErrStaleReplica, l, len(level))
		}
		for i, raw := range level {
			b, err := oram.UnmarshalBucket(raw)
			if err != nil {
				return err
			}
			if err := tree.SetNode(oram.Location{Level: l, Index: i}, b); err != nil {
				return err
			}
		}
	}

	for _, k := range c.st.Map.Keys() {
		loc, _ := c.st.Map.Get(k)
		b, err := tree.Node(loc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStaleReplica, err)
		}
		if b.Empty() {
			return fmt.Errorf("%w: mapped location %s is empty", ErrStaleReplica, loc)
		}
	}

	c.st.Tree = tree
	c.st.Stash = oram.NewStash(c.cfg.StashCapacity)
	c.logger.Info("tree restored", "keys", c.st.Map.Len())
	return nil
}
