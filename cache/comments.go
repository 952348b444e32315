package cache

import (
	"context"
	"fmt"
	"strings"

	"socialfeed/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// FetchComments loads the comments of a post. Cached comments are kept unless
// force is set. Every fetched comment starts pending, so a refresh drops the
// post's approved count to zero.
func (c *Cache) FetchComments(ctx context.Context, postId int64, force bool) error {
	if !force {
		if _, ok := c.Snapshot().Comments[postId]; ok {
			return nil
		}
	}

	_, err, _ := c.inflight.Do(fmt.Sprintf("comments:%d", postId), func() (interface{}, error) {
		c.fetchingComments.Add(1)
		defer c.fetchingComments.Add(-1)

		fetched, err := c.remote.ListComments(ctx, postId)
		if err != nil {
			return nil, c.remoteFailure("fetch comments", err, log.Fields{"postId": postId})
		}
		c.clearLastError()

		comments := make([]models.Comment, 0, len(fetched))
		for _, comment := range fetched {
			comment.PostId = postId
			comment.Status = models.StatusPending
			comments = append(comments, comment)
		}

		c.commit(ctx, "comments", func(prev models.Snapshot) (models.Snapshot, bool) {
			next := prev.Clone()
			next.Comments[postId] = comments
			setApprovedCount(&next, postId)
			return next, true
		})

		log.WithFields(log.Fields{"postId": postId, "count": len(comments)}).Debug("Fetched comments")
		return nil, nil
	})
	return err
}

// ModerateComment approves or rejects a comment and adjusts the post's
// approved count by the transition. Unknown comments and repeated decisions
// are no-ops. It reports whether anything changed.
func (c *Cache) ModerateComment(ctx context.Context, postId, commentId int64, approve bool) bool {
	target := lo.Ternary(approve, models.StatusApproved, models.StatusRejected)

	var from models.CommentStatus
	changed := c.commit(ctx, "comment_moderated", func(prev models.Snapshot) (models.Snapshot, bool) {
		comment, i, ok := lo.FindIndexOf(prev.Comments[postId], func(comment models.Comment) bool {
			return comment.Id == commentId
		})
		if !ok || comment.Status == target {
			return prev, false
		}

		from = comment.Status
		next := prev.Clone()
		next.Comments[postId][i].Status = target

		delta := 0
		if target == models.StatusApproved {
			delta = 1
		} else if from == models.StatusApproved {
			delta = -1
		}
		for j := range next.Posts {
			if next.Posts[j].Id == postId {
				next.Posts[j].ApprovedCommentsCount = max(0, next.Posts[j].ApprovedCommentsCount+delta)
			}
		}
		return next, true
	})

	if changed {
		moderationTransitions.WithLabelValues(string(from), string(target)).Inc()
		log.WithFields(log.Fields{
			"postId":    postId,
			"commentId": commentId,
			"from":      from,
			"to":        target,
		}).Info("Moderated comment")
	}
	return changed
}

// MakeComment adds a local comment in front of the post's comments. It is
// always stored pending and never sent to the remote.
func (c *Cache) MakeComment(ctx context.Context, comment models.Comment) (models.Comment, error) {
	comment.Body = strings.TrimSpace(comment.Body)
	if comment.Body == "" {
		return models.Comment{}, validationError("comment body is required")
	}
	if comment.PostId == 0 {
		return models.Comment{}, validationError("post id is required")
	}
	comment.Status = models.StatusPending

	var err error
	c.commit(ctx, "comment_added", func(prev models.Snapshot) (models.Snapshot, bool) {
		if !lo.ContainsBy(prev.Posts, func(post models.Post) bool { return post.Id == comment.PostId }) {
			err = validationError("post %d is not in the feed", comment.PostId)
			return prev, false
		}

		existing := prev.Comments[comment.PostId]
		ids := lo.Map(existing, func(other models.Comment, _ int) int64 { return other.Id })
		if comment.Id == 0 || lo.Contains(ids, comment.Id) {
			comment.Id = c.nextLocalId(lo.Max(ids))
		}

		next := prev.Clone()
		next.Comments[comment.PostId] = append([]models.Comment{comment}, next.Comments[comment.PostId]...)
		return next, true
	})
	if err != nil {
		return models.Comment{}, err
	}

	log.WithFields(log.Fields{"postId": comment.PostId, "commentId": comment.Id}).Info("Added comment")
	return comment, nil
}
