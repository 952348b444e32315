package cache

import (
	"context"
	"fmt"
	"strings"

	"socialfeed/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// FetchPosts loads one page of the feed. Page 1 replaces the cached list and
// is skipped when posts are cached and force is false; later pages append.
// On failure the cached posts are left untouched.
func (c *Cache) FetchPosts(ctx context.Context, page int, force bool) error {
	if page < 1 {
		page = 1
	}
	if page == 1 && !force && len(c.Snapshot().Posts) > 0 {
		return nil
	}

	_, err, shared := c.inflight.Do(fmt.Sprintf("posts:%d", page), func() (interface{}, error) {
		c.fetchingPosts.Add(1)
		defer c.fetchingPosts.Add(-1)

		posts, err := c.remote.ListPosts(ctx, page, c.pageSize)
		if err != nil {
			return nil, c.remoteFailure("fetch posts", err, log.Fields{"page": page})
		}
		c.clearLastError()

		c.commit(ctx, "posts", func(prev models.Snapshot) (models.Snapshot, bool) {
			next := prev.Clone()
			incoming := lo.Map(posts, func(post models.Post, _ int) models.Post {
				post.ApprovedCommentsCount = approvedCount(next.Comments[post.Id])
				return post
			})

			if page == 1 {
				next.Posts = lo.UniqBy(incoming, func(post models.Post) int64 { return post.Id })
				return next, true
			}

			known := lo.SliceToMap(next.Posts, func(post models.Post) (int64, struct{}) { return post.Id, struct{}{} })
			for _, post := range incoming {
				if _, ok := known[post.Id]; ok {
					continue
				}
				known[post.Id] = struct{}{}
				next.Posts = append(next.Posts, post)
			}
			return next, true
		})

		log.WithFields(log.Fields{"page": page, "count": len(posts)}).Debug("Fetched posts")
		return nil, nil
	})
	if shared {
		log.WithFields(log.Fields{"page": page}).Trace("Joined in-flight posts fetch")
	}
	return err
}

// SavePost creates a post when postId is 0, otherwise applies patch to the
// existing post. The returned post is the one stored in the cache.
func (c *Cache) SavePost(ctx context.Context, patch models.PostPatch, postId int64) (models.Post, error) {
	if postId != 0 {
		return c.updatePost(ctx, patch, postId)
	}
	return c.createPost(ctx, patch)
}

func (c *Cache) createPost(ctx context.Context, patch models.PostPatch) (models.Post, error) {
	title := strings.TrimSpace(lo.FromPtr(patch.Title))
	body := strings.TrimSpace(lo.FromPtr(patch.Body))
	if title == "" || body == "" {
		return models.Post{}, validationError("title and body are required")
	}

	c.savingPost.Add(1)
	defer c.savingPost.Add(-1)

	draft := models.Post{
		Id:     c.nextLocalId(0),
		UserId: c.ownerUserId,
		Title:  title,
		Body:   body,
	}

	response, err := c.remote.CreatePost(ctx, draft)
	if err != nil {
		return models.Post{}, c.remoteFailure("create post", err, log.Fields{"title": title})
	}
	c.clearLastError()

	var created models.Post
	c.commit(ctx, "post_created", func(prev models.Snapshot) (models.Snapshot, bool) {
		next := prev.Clone()
		taken := func(id int64) bool {
			return lo.ContainsBy(next.Posts, func(post models.Post) bool { return post.Id == id })
		}

		created = response.Merge(draft)
		if remoteId := lo.FromPtr(response.Id); remoteId != 0 {
			if taken(remoteId) {
				log.WithFields(log.Fields{"remoteId": remoteId, "localId": draft.Id}).Warn("Remote assigned an id already in the feed, keeping local id")
			} else {
				created.Id = remoteId
			}
		}
		if created.Id == draft.Id && taken(draft.Id) {
			created.Id = c.nextLocalId(lo.Max(lo.Map(next.Posts, func(post models.Post, _ int) int64 { return post.Id })))
		}
		created.ApprovedCommentsCount = approvedCount(next.Comments[created.Id])

		next.Posts = append([]models.Post{created}, next.Posts...)
		return next, true
	})

	log.WithFields(log.Fields{"id": created.Id}).Info("Created post")
	return created, nil
}

func (c *Cache) updatePost(ctx context.Context, patch models.PostPatch, postId int64) (models.Post, error) {
	if patch.Empty() {
		return models.Post{}, validationError("nothing to update")
	}
	if _, ok := c.Post(postId); !ok {
		return models.Post{}, validationError("post %d is not in the feed", postId)
	}

	c.savingPost.Add(1)
	defer c.savingPost.Add(-1)

	response, err := c.remote.UpdatePost(ctx, postId, patch)
	if err != nil {
		return models.Post{}, c.remoteFailure("update post", err, log.Fields{"id": postId})
	}
	c.clearLastError()

	// Fields the response left out fall back to what was sent
	merged := models.PostPatch{
		UserId: orSent(response.UserId, patch.UserId),
		Title:  orSent(response.Title, patch.Title),
		Body:   orSent(response.Body, patch.Body),
	}

	var updated models.Post
	found := false
	c.commit(ctx, "post_updated", func(prev models.Snapshot) (models.Snapshot, bool) {
		_, i, ok := lo.FindIndexOf(prev.Posts, func(post models.Post) bool { return post.Id == postId })
		if !ok {
			return prev, false
		}
		next := prev.Clone()
		next.Posts[i] = merged.Merge(next.Posts[i])
		updated = next.Posts[i]
		found = true
		return next, true
	})
	if !found {
		// Deleted while the update was in flight
		return models.Post{}, validationError("post %d is not in the feed", postId)
	}

	log.WithFields(log.Fields{"id": postId}).Info("Updated post")
	return updated, nil
}

// DeletePost removes a post and its cached comments once the remote confirms
func (c *Cache) DeletePost(ctx context.Context, postId int64) error {
	if err := c.remote.DeletePost(ctx, postId); err != nil {
		return c.remoteFailure("delete post", err, log.Fields{"id": postId})
	}
	c.clearLastError()

	c.commit(ctx, "post_deleted", func(prev models.Snapshot) (models.Snapshot, bool) {
		_, hasComments := prev.Comments[postId]
		hasPost := lo.ContainsBy(prev.Posts, func(post models.Post) bool { return post.Id == postId })
		if !hasPost && !hasComments {
			return prev, false
		}
		next := prev.Clone()
		next.Posts = lo.Reject(next.Posts, func(post models.Post, _ int) bool { return post.Id == postId })
		delete(next.Comments, postId)
		return next, true
	})

	log.WithFields(log.Fields{"id": postId}).Info("Deleted post")
	return nil
}

func orSent[T any](received, sent *T) *T {
	if received != nil {
		return received
	}
	return sent
}
