package models

import "strings"

// Post as served by the remote posts resource, plus the locally derived
// approved comment count
type Post struct {
	Id                    int64  `json:"id"`
	UserId                int64  `json:"userId"`
	Title                 string `json:"title"`
	Body                  string `json:"body"`
	ApprovedCommentsCount int    `json:"approvedCommentsCount"`
}

// PostPatch is a partial post. Nil fields are absent, which lets a remote
// response be merged into a cached post without clobbering fields it left out.
type PostPatch struct {
	Id     *int64  `json:"id,omitempty"`
	UserId *int64  `json:"userId,omitempty"`
	Title  *string `json:"title,omitempty"`
	Body   *string `json:"body,omitempty"`
}

// Merge returns a copy of post with every present patch field applied.
// Id and ApprovedCommentsCount are never touched, the cache owns both.
func (p PostPatch) Merge(post Post) Post {
	if p.UserId != nil {
		post.UserId = *p.UserId
	}
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Body != nil {
		post.Body = *p.Body
	}
	return post
}

// Empty reports whether the patch carries no fields at all
func (p PostPatch) Empty() bool {
	return p.Id == nil && p.UserId == nil && p.Title == nil && p.Body == nil
}

type CommentStatus string

const (
	StatusPending  CommentStatus = "pending"
	StatusApproved CommentStatus = "approved"
	StatusRejected CommentStatus = "rejected"
)

// Comment on a post. Status is a local moderation concept, the remote
// resource does not know about it.
type Comment struct {
	Id     int64         `json:"id"`
	PostId int64         `json:"postId"`
	Name   string        `json:"name"`
	Email  string        `json:"email"`
	Body   string        `json:"body"`
	Status CommentStatus `json:"status,omitempty"`
}

// User is the authenticated account as persisted in the session entry
type User struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	IsModerator bool   `json:"isModerator"`
}

func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CanModerate is true for moderators acting on somebody else's comment
func (u User) CanModerate(c Comment) bool {
	return u.IsModerator && !strings.EqualFold(u.Email, c.Email)
}

// Snapshot is the complete cache value. It is replaced wholesale on every
// change and must not be mutated once published.
type Snapshot struct {
	Posts    []Post              `json:"posts"`
	Comments map[int64][]Comment `json:"comments"`
}

func EmptySnapshot() Snapshot {
	return Snapshot{
		Posts:    []Post{},
		Comments: map[int64][]Comment{},
	}
}

// Clone copies the post slice, the comment map and every comment slice so the
// result can be modified freely.
func (s Snapshot) Clone() Snapshot {
	clone := Snapshot{
		Posts:    make([]Post, len(s.Posts)),
		Comments: make(map[int64][]Comment, len(s.Comments)),
	}
	copy(clone.Posts, s.Posts)
	for postId, comments := range s.Comments {
		clone.Comments[postId] = append([]Comment(nil), comments...)
	}
	return clone
}

// SortOption names an ordering of the feed
type SortOption string

const (
	SortLatest           SortOption = "latest"
	SortMostCommented    SortOption = "most_commented"
	SortAlphabeticalAsc  SortOption = "alphabeticalAsc"
	SortAlphabeticalDesc SortOption = "alphabeticalDesc"
)

var SortOptions = []SortOption{SortLatest, SortMostCommented, SortAlphabeticalAsc, SortAlphabeticalDesc}

// Change events published by the cache after a commit
type SnapshotEvent struct {
	Reason   string   `json:"reason"`
	Snapshot Snapshot `json:"snapshot"`
}
