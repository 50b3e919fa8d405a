// Package engagement maintains likes and comments on posts together with the
// denormalized counters on the post row.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
	svcErr "github.com/oggyb/event-network/internal/errors"
	"github.com/oggyb/event-network/internal/events"
	"github.com/oggyb/event-network/internal/metrics"
	"github.com/oggyb/event-network/internal/repository"
)

type Service struct {
	posts     *repository.PostRepository
	publisher events.Publisher
	log       *slog.Logger
}

// NewService wires the engagement service. publisher may be nil.
func NewService(gdb *gorm.DB, publisher events.Publisher, log *slog.Logger) *Service {
	return &Service{
		posts:     repository.NewPostRepository(gdb),
		publisher: publisher,
		log:       log.With("component", "engagement"),
	}
}

func (s *Service) CreatePost(ctx context.Context, userID uint64, content string) (db.Post, error) {
	const op = "engagement.create_post"
	if userID == 0 {
		return db.Post{}, svcErr.Invalid(op, "user id must be set")
	}
	if strings.TrimSpace(content) == "" {
		return db.Post{}, svcErr.Invalid(op, "content must not be empty")
	}

	p := db.Post{UserID: userID, Content: content}
	if err := s.posts.Create(ctx, &p); err != nil {
		return db.Post{}, svcErr.FromStore(op, err)
	}
	events.Emit(ctx, s.publisher, s.log, events.PostCreated, userID, map[string]any{"post_id": p.ID})
	return p, nil
}

func (s *Service) GetPost(ctx context.Context, postID uint64) (db.Post, error) {
	p, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return db.Post{}, svcErr.FromStore("engagement.get_post", err)
	}
	return p, nil
}

// Like adds userID's like. A second like by the same user is a Conflict.
func (s *Service) Like(ctx context.Context, userID, postID uint64) (p db.Post, err error) {
	const op = "engagement.like"
	defer func() { metrics.IncEngagement("like", metrics.Status(err)) }()

	if userID == 0 || postID == 0 {
		return p, svcErr.Invalid(op, "user and post must be set")
	}

	p, err = s.posts.Like(ctx, userID, postID)
	if errors.Is(err, repository.ErrAlreadyLiked) {
		return db.Post{}, svcErr.Conflict(op, fmt.Sprintf("user %d already likes post %d", userID, postID))
	}
	if err != nil {
		return db.Post{}, svcErr.FromStore(op, err)
	}

	events.Emit(ctx, s.publisher, s.log, events.PostLiked, userID, counters(p))
	return p, nil
}

// Unlike removes userID's like. NotFound when there is none.
func (s *Service) Unlike(ctx context.Context, userID, postID uint64) (p db.Post, err error) {
	const op = "engagement.unlike"
	defer func() { metrics.IncEngagement("unlike", metrics.Status(err)) }()

	if userID == 0 || postID == 0 {
		return p, svcErr.Invalid(op, "user and post must be set")
	}

	p, err = s.posts.Unlike(ctx, userID, postID)
	if errors.Is(err, repository.ErrNotLiked) {
		return db.Post{}, svcErr.NotFound(op, fmt.Sprintf("user %d does not like post %d", userID, postID))
	}
	if err != nil {
		return db.Post{}, svcErr.FromStore(op, err)
	}

	events.Emit(ctx, s.publisher, s.log, events.PostUnliked, userID, counters(p))
	return p, nil
}

func (s *Service) AddComment(ctx context.Context, userID, postID uint64, content string) (c db.Comment, p db.Post, err error) {
	const op = "engagement.add_comment"
	defer func() { metrics.IncEngagement("comment", metrics.Status(err)) }()

	if userID == 0 || postID == 0 {
		return c, p, svcErr.Invalid(op, "user and post must be set")
	}
	if strings.TrimSpace(content) == "" {
		return c, p, svcErr.Invalid(op, "comment must not be empty")
	}

	c = db.Comment{PostID: postID, UserID: userID, Content: content}
	p, err = s.posts.AddComment(ctx, &c)
	if err != nil {
		return db.Comment{}, db.Post{}, svcErr.FromStore(op, err)
	}

	payload := counters(p)
	payload["comment_id"] = c.ID
	events.Emit(ctx, s.publisher, s.log, events.CommentAdded, userID, payload)
	return c, p, nil
}

// DeleteComment removes a comment. Only its author may delete it.
func (s *Service) DeleteComment(ctx context.Context, actorID, commentID uint64) (p db.Post, err error) {
	const op = "engagement.delete_comment"
	defer func() { metrics.IncEngagement("uncomment", metrics.Status(err)) }()

	c, err := s.posts.GetComment(ctx, commentID)
	if err != nil {
		return db.Post{}, svcErr.FromStore(op, err)
	}
	if c.UserID != actorID {
		return db.Post{}, svcErr.Unauthorized(op, fmt.Sprintf("user %d did not write comment %d", actorID, commentID))
	}

	p, err = s.posts.DeleteComment(ctx, c)
	if err != nil {
		return db.Post{}, svcErr.FromStore(op, err)
	}

	payload := counters(p)
	payload["comment_id"] = c.ID
	events.Emit(ctx, s.publisher, s.log, events.CommentDeleted, actorID, payload)
	return p, nil
}

func (s *Service) ListComments(ctx context.Context, postID uint64) ([]db.Comment, error) {
	out, err := s.posts.ListComments(ctx, postID)
	if err != nil {
		return nil, svcErr.FromStore("engagement.list_comments", err)
	}
	return out, nil
}

func counters(p db.Post) map[string]any {
	return map[string]any{
		"post_id":        p.ID,
		"likes_count":    p.LikesCount,
		"comments_count": p.CommentsCount,
	}
}
