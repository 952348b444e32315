package view

import (
	"context"
	"sync"

	"socialfeed/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// PostSaver is the cache operation the overlay wraps
type PostSaver interface {
	SavePost(ctx context.Context, patch models.PostPatch, postId int64) (models.Post, error)
}

type override struct {
	patch models.PostPatch
	seq   uint64
}

// Overlay renders unconfirmed post edits over the cache's confirmed posts.
// It never writes to the cache.
type Overlay struct {
	mu      sync.RWMutex
	pending map[int64]override
	seq     uint64
}

func NewOverlay() *Overlay {
	return &Overlay{pending: make(map[int64]override)}
}

// Apply shows patch over post postId until the returned settle func is called.
// A later Apply for the same post replaces it.
func (o *Overlay) Apply(postId int64, patch models.PostPatch) (settle func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	seq := o.seq
	o.pending[postId] = override{patch: patch, seq: seq}

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if current, ok := o.pending[postId]; ok && current.seq == seq {
			delete(o.pending, postId)
		}
	}
}

// Pending reports whether post postId has an unconfirmed edit
func (o *Overlay) Pending(postId int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.pending[postId]
	return ok
}

// View returns posts with pending edits applied, matched by id
func (o *Overlay) View(posts []models.Post) []models.Post {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return lo.Map(posts, func(post models.Post, _ int) models.Post {
		if current, ok := o.pending[post.Id]; ok {
			return current.patch.Merge(post)
		}
		return post
	})
}

// Update shows patch immediately, saves it through saver and settles the
// override whatever the outcome, so the view falls back to the cache.
func (o *Overlay) Update(ctx context.Context, saver PostSaver, postId int64, patch models.PostPatch) (models.Post, error) {
	settle := o.Apply(postId, patch)
	defer settle()

	post, err := saver.SavePost(ctx, patch, postId)
	if err != nil {
		log.WithFields(log.Fields{"id": postId, "error": err}).Warn("Dropping optimistic post edit")
		return models.Post{}, err
	}
	return post, nil
}
