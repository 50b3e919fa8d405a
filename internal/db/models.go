package db

import (
	"time"
)

// Profile is an attendee as seen by matching, friendship and messaging.
// Rows are owned by the profile directory; this service only reads them.
type Profile struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	DisplayName string    `gorm:"size:128"`
	Interests   []string  `gorm:"serializer:json"`
	Company     string    `gorm:"size:128"`
	Role        string    `gorm:"size:128"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Registration links an attendee to an event.
type Registration struct {
	EventID   uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Match is a directional introduction suggestion for UserID within an event.
//
// Indexes:
//   - idx_match_user_score(user_id, score DESC)
//     Serves "my matches" ordered by score.
//   - idx_match_event_epoch(event_id, epoch)
//     Serves the per-event swap and the epoch join.
//
// Fields:
//   - Epoch: the recompute generation the row belongs to. Only rows whose
//     epoch equals MatchEpoch.Epoch for the event are visible.
//   - Reasons: ordered, human readable explanations of the score.
type Match struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	UserID        uint64    `gorm:"not null;index:idx_match_user_score,priority:1"`
	MatchedUserID uint64    `gorm:"not null"`
	EventID       uint64    `gorm:"not null;index:idx_match_event_epoch,priority:1"`
	Epoch         uint64    `gorm:"not null;index:idx_match_event_epoch,priority:2"`
	Score         int       `gorm:"not null;index:idx_match_user_score,priority:2,sort:desc"`
	Reasons       []string  `gorm:"serializer:json"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// MatchEpoch points at the current match generation of an event.
type MatchEpoch struct {
	EventID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	Epoch     uint64    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName pins the table the match listing joins on; gorm's inflection
// would otherwise pick "match_epoches".
func (MatchEpoch) TableName() string { return "match_epochs" }

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
)

// Friendship is a connection request between two users.
//
// PairLow/PairHigh hold the unordered pair in canonical order; the unique
// index on them guarantees one row per pair regardless of orientation.
type Friendship struct {
	ID          uint64           `gorm:"primaryKey;autoIncrement"`
	RequesterID uint64           `gorm:"not null;index"`
	AddresseeID uint64           `gorm:"not null;index"`
	PairLow     uint64           `gorm:"not null;uniqueIndex:idx_friendship_pair,priority:1"`
	PairHigh    uint64           `gorm:"not null;uniqueIndex:idx_friendship_pair,priority:2"`
	Status      FriendshipStatus `gorm:"size:16;not null;index"`
	CreatedAt   time.Time        `gorm:"autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime"`
}

// CanonicalPair orders two user ids low/high.
func CanonicalPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Other returns the party of f that is not userID.
func (f Friendship) Other(userID uint64) uint64 {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// Message is a direct message. Only Read ever changes after insert.
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SenderID   uint64    `gorm:"not null;index:idx_message_sender_created,priority:1" json:"sender_id"`
	ReceiverID uint64    `gorm:"not null;index:idx_message_receiver_read,priority:1" json:"receiver_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Read       bool      `gorm:"column:is_read;not null;default:false;index:idx_message_receiver_read,priority:2" json:"read"`
	CreatedAt  time.Time `gorm:"not null;index:idx_message_sender_created,priority:2" json:"created_at"`
}

// Counterpart returns the other participant of m from viewerID's side.
func (m Message) Counterpart(viewerID uint64) uint64 {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Post carries denormalized engagement counters. LikesCount and
// CommentsCount are only ever changed with atomic store expressions.
type Post struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	UserID        uint64    `gorm:"not null;index"`
	Content       string    `gorm:"type:text;not null"`
	LikesCount    int64     `gorm:"not null;default:0"`
	CommentsCount int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Like is unique per (user, post); its existence is the source of truth.
type Like struct {
	UserID    uint64    `gorm:"primaryKey"`
	PostID    uint64    `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type Comment struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	PostID    uint64    `gorm:"not null;index"`
	UserID    uint64    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Profile{}, &Registration{},
		&Match{}, &MatchEpoch{},
		&Friendship{},
		&Message{},
		&Post{}, &Like{}, &Comment{},
	}
}
