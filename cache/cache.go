// Package cache owns the client-side feed state: the posts of the feed, the
// comments of each post and the approved comment counts derived from them.
//
// State is held as an immutable models.Snapshot. Every change builds a new
// snapshot from the latest one and publishes it atomically, so readers always
// observe a complete snapshot. Network calls happen outside the write lock.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"socialfeed/models"
	"socialfeed/store"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageSize    = 5
	DefaultOwnerUserId = 211094
)

var (
	// ErrValidation is wrapped by failures detected before any remote call
	ErrValidation = errors.New("invalid request")
	// ErrRemote is returned for every remote failure. Details are only logged.
	ErrRemote = errors.New("remote request failed")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Remote is the resource API the cache reads from and writes to
type Remote interface {
	ListPosts(ctx context.Context, page, limit int) ([]models.Post, error)
	ListComments(ctx context.Context, postId int64) ([]models.Comment, error)
	CreatePost(ctx context.Context, post models.Post) (models.PostPatch, error)
	UpdatePost(ctx context.Context, id int64, patch models.PostPatch) (models.PostPatch, error)
	DeletePost(ctx context.Context, id int64) error
}

// Flags are advisory in-flight indicators for the view
type Flags struct {
	FetchingPosts    bool   `json:"fetchingPosts"`
	FetchingComments bool   `json:"fetchingComments"`
	SavingPost       bool   `json:"savingPost"`
	LastError        string `json:"lastError,omitempty"`
}

type Option func(*Cache)

func WithPageSize(size int) Option {
	return func(c *Cache) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithOwnerUserId sets the user id stamped on locally created posts
func WithOwnerUserId(id int64) Option {
	return func(c *Cache) { c.ownerUserId = id }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type Cache struct {
	remote      Remote
	kv          store.KV
	pageSize    int
	ownerUserId int64
	now         func() time.Time

	current atomic.Pointer[models.Snapshot]
	writeMu sync.Mutex
	// Taken before writeMu is released so listeners see commits in order
	notifyMu sync.Mutex

	// One in-flight fetch per page or post id
	inflight singleflight.Group

	fetchingPosts    atomic.Int32
	fetchingComments atomic.Int32
	savingPost       atomic.Int32

	lastErrorMu sync.RWMutex
	lastError   string

	lastLocalId atomic.Int64

	listenersMu  sync.RWMutex
	listeners    map[int]func(models.SnapshotEvent)
	nextListener int
}

func New(remote Remote, kv store.KV, opts ...Option) *Cache {
	c := &Cache{
		remote:      remote,
		kv:          kv,
		pageSize:    DefaultPageSize,
		ownerUserId: DefaultOwnerUserId,
		now:         time.Now,
		listeners:   make(map[int]func(models.SnapshotEvent)),
	}
	for _, opt := range opts {
		opt(c)
	}

	empty := models.EmptySnapshot()
	c.current.Store(&empty)
	return c
}

// Load restores the persisted snapshot. Counts are re-derived from the
// comments so a stored snapshot cannot break the approved count invariant.
func (c *Cache) Load(ctx context.Context) error {
	var snapshot models.Snapshot
	found, err := store.GetJSON(ctx, c.kv, store.KeyCacheSnapshot, &snapshot)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Discarding unreadable cache snapshot")
		found = false
	}
	if !found {
		snapshot = models.EmptySnapshot()
	}
	if snapshot.Posts == nil {
		snapshot.Posts = []models.Post{}
	}
	if snapshot.Comments == nil {
		snapshot.Comments = map[int64][]models.Comment{}
	}
	for i := range snapshot.Posts {
		snapshot.Posts[i].ApprovedCommentsCount = approvedCount(snapshot.Comments[snapshot.Posts[i].Id])
	}

	c.writeMu.Lock()
	c.current.Store(&snapshot)
	c.writeMu.Unlock()

	log.WithFields(log.Fields{
		"posts":        len(snapshot.Posts),
		"commentLists": len(snapshot.Comments),
	}).Debug("Loaded cache snapshot")
	return nil
}

// Snapshot returns the current state. It is shared and must be treated as
// read-only; use Clone before modifying it.
func (c *Cache) Snapshot() models.Snapshot {
	return *c.current.Load()
}

func (c *Cache) Posts() []models.Post {
	return append([]models.Post(nil), c.Snapshot().Posts...)
}

func (c *Cache) Post(id int64) (models.Post, bool) {
	return lo.Find(c.Snapshot().Posts, func(p models.Post) bool { return p.Id == id })
}

// Comments returns the cached comments of a post, found is false when they
// were never fetched nor added
func (c *Cache) Comments(postId int64) ([]models.Comment, bool) {
	comments, ok := c.Snapshot().Comments[postId]
	if !ok {
		return nil, false
	}
	return append([]models.Comment{}, comments...), true
}

func (c *Cache) Flags() Flags {
	c.lastErrorMu.RLock()
	defer c.lastErrorMu.RUnlock()
	return Flags{
		FetchingPosts:    c.fetchingPosts.Load() > 0,
		FetchingComments: c.fetchingComments.Load() > 0,
		SavingPost:       c.savingPost.Load() > 0,
		LastError:        c.lastError,
	}
}

// Subscribe registers fn to be called after every committed change, in
// commit order. fn must not modify the cache. The returned function removes it.
func (c *Cache) Subscribe(fn func(models.SnapshotEvent)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// commit applies transform to the latest snapshot. transform must not modify
// its argument; it returns the next snapshot and whether anything changed.
// The new snapshot is persisted before the lock is released so writes reach
// the store in commit order.
func (c *Cache) commit(ctx context.Context, reason string, transform func(prev models.Snapshot) (models.Snapshot, bool)) bool {
	c.writeMu.Lock()
	next, changed := transform(*c.current.Load())
	if !changed {
		c.writeMu.Unlock()
		return false
	}
	c.current.Store(&next)
	c.persist(ctx, next)
	c.notifyMu.Lock()
	c.writeMu.Unlock()

	c.notify(models.SnapshotEvent{Reason: reason, Snapshot: next})
	c.notifyMu.Unlock()
	return true
}

// persist is best effort, failures are logged and never returned
func (c *Cache) persist(ctx context.Context, snapshot models.Snapshot) {
	if err := store.SetJSON(context.WithoutCancel(ctx), c.kv, store.KeyCacheSnapshot, snapshot); err != nil {
		persistFailures.Inc()
		log.WithFields(log.Fields{"error": err}).Error("Error persisting cache snapshot")
	}
}

func (c *Cache) notify(event models.SnapshotEvent) {
	c.listenersMu.RLock()
	listeners := lo.Values(c.listeners)
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

func (c *Cache) remoteFailure(op string, err error, fields log.Fields) error {
	fields["error"] = err
	log.WithFields(fields).Errorf("Error %s", op)

	c.lastErrorMu.Lock()
	c.lastError = fmt.Sprintf("Could not %s. Please try again.", op)
	c.lastErrorMu.Unlock()

	return fmt.Errorf("%s: %w", op, ErrRemote)
}

func (c *Cache) clearLastError() {
	c.lastErrorMu.Lock()
	c.lastError = ""
	c.lastErrorMu.Unlock()
}

// nextLocalId hands out millisecond clock ids that never repeat within the process
func (c *Cache) nextLocalId(floor int64) int64 {
	for {
		last := c.lastLocalId.Load()
		id := max(c.now().UnixMilli(), last+1, floor+1)
		if c.lastLocalId.CompareAndSwap(last, id) {
			return id
		}
	}
}

func approvedCount(comments []models.Comment) int {
	return lo.CountBy(comments, func(comment models.Comment) bool {
		return comment.Status == models.StatusApproved
	})
}

// setApprovedCount re-derives the count of postId inside next
func setApprovedCount(next *models.Snapshot, postId int64) {
	for i := range next.Posts {
		if next.Posts[i].Id == postId {
			next.Posts[i].ApprovedCommentsCount = approvedCount(next.Comments[postId])
		}
	}
}
