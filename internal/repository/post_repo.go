package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/event-network/internal/db"
)

var (
	// ErrAlreadyLiked is returned by Like when the (user, post) like exists.
	ErrAlreadyLiked = errors.New("post already liked")
	// ErrNotLiked is returned by Unlike when there is no like to remove.
	ErrNotLiked = errors.New("post not liked")
)

const (
	incrementCount = "%s + 1"
	// floorDecrement keeps counters at zero or above on every dialect.
	floorDecrement = "CASE WHEN %[1]s > 0 THEN %[1]s - 1 ELSE 0 END"
)

// PostRepository owns posts, likes and comments.
//
// Every counter change runs in the same transaction as the fact row it
// mirrors and is expressed as an atomic `col = col ± 1` at the store,
// never as read-modify-write.
type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, p *db.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID returns the post or gorm.ErrRecordNotFound.
func (r *PostRepository) GetByID(ctx context.Context, id uint64) (db.Post, error) {
	var p db.Post
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, err
}

// Like records userID's like and increments likes_count.
// Returns ErrAlreadyLiked for a duplicate and gorm.ErrRecordNotFound for a missing post.
func (r *PostRepository) Like(ctx context.Context, userID, postID uint64) (db.Post, error) {
	var post db.Post

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&db.Like{UserID: userID, PostID: postID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyLiked
		}

		if err := bumpCounter(tx, postID, "likes_count", incrementCount); err != nil {
			return err
		}
		return tx.First(&post, "id = ?", postID).Error
	})
	return post, err
}

// Unlike removes userID's like and decrements likes_count, floored at 0.
// Returns ErrNotLiked when there was no like.
func (r *PostRepository) Unlike(ctx context.Context, userID, postID uint64) (db.Post, error) {
	var post db.Post

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&db.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotLiked
		}

		if err := bumpCounter(tx, postID, "likes_count", floorDecrement); err != nil {
			return err
		}
		return tx.First(&post, "id = ?", postID).Error
	})
	return post, err
}

// HasLiked reports whether userID likes postID.
func (r *PostRepository) HasLiked(ctx context.Context, userID, postID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&n).Error
	return n > 0, err
}

// AddComment inserts c and increments comments_count of c.PostID.
func (r *PostRepository) AddComment(ctx context.Context, c *db.Comment) (db.Post, error) {
	var post db.Post

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := bumpCounter(tx, c.PostID, "comments_count", incrementCount); err != nil {
			return err
		}
		return tx.First(&post, "id = ?", c.PostID).Error
	})
	return post, err
}

// GetComment returns the comment or gorm.ErrRecordNotFound.
func (r *PostRepository) GetComment(ctx context.Context, id uint64) (db.Comment, error) {
	var c db.Comment
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return c, err
}

// DeleteComment removes comment c and decrements comments_count, floored at 0.
// Returns gorm.ErrRecordNotFound if the comment vanished concurrently.
func (r *PostRepository) DeleteComment(ctx context.Context, c db.Comment) (db.Post, error) {
	var post db.Post

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", c.ID).Delete(&db.Comment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := bumpCounter(tx, c.PostID, "comments_count", floorDecrement); err != nil {
			return err
		}
		return tx.First(&post, "id = ?", c.PostID).Error
	})
	return post, err
}

// ListComments returns the comments of postID, oldest first.
func (r *PostRepository) ListComments(ctx context.Context, postID uint64) ([]db.Comment, error) {
	var out []db.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// bumpCounter applies an atomic expression to column of postID.
// A missing post is detected by the caller's read-back (gorm.ErrRecordNotFound),
// which rolls the transaction back; RowsAffected is not used because MySQL
// reports 0 for a floor decrement that leaves the value unchanged.
func bumpCounter(tx *gorm.DB, postID uint64, column, exprFormat string) error {
	return tx.Model(&db.Post{}).
		Where("id = ?", postID).
		UpdateColumn(column, gorm.Expr(fmt.Sprintf(exprFormat, column))).Error
}
