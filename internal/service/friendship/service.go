// Package friendship implements the request/accept lifecycle between two
// users. At most one row exists per unordered pair of users.
package friendship

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
	svcErr "github.com/oggyb/event-network/internal/errors"
	"github.com/oggyb/event-network/internal/events"
	"github.com/oggyb/event-network/internal/metrics"
	"github.com/oggyb/event-network/internal/repository"
)

type Service struct {
	db        *gorm.DB
	repo      *repository.FriendshipRepository
	profiles  *repository.ProfileRepository
	publisher events.Publisher
	log       *slog.Logger
}

// NewService wires the friendship service. publisher may be nil.
func NewService(gdb *gorm.DB, publisher events.Publisher, log *slog.Logger) *Service {
	return &Service{
		db:        gdb,
		repo:      repository.NewFriendshipRepository(gdb),
		profiles:  repository.NewProfileRepository(gdb),
		publisher: publisher,
		log:       log.With("component", "friendship"),
	}
}

// Entry is one friendship row seen from the viewer, resolved to the other party.
type Entry struct {
	Friendship db.Friendship
	Other      db.Profile
}

// Lists groups a user's friendships by state and direction.
type Lists struct {
	Friends  []Entry
	Incoming []Entry
	Outgoing []Entry
}

// SendRequest creates a pending request from requester to addressee.
//
// A pending or accepted row in either orientation is a Conflict. A rejected
// row is reused: it goes back to pending, oriented from the new requester.
func (s *Service) SendRequest(ctx context.Context, requesterID, addresseeID uint64) (f db.Friendship, err error) {
	const op = "friendship.send"
	defer func() { metrics.IncFriendship("send", metrics.Status(err)) }()

	if requesterID == 0 || addresseeID == 0 {
		return f, svcErr.Invalid(op, "user ids must be set")
	}
	if requesterID == addresseeID {
		return f, svcErr.Invalid(op, "cannot befriend yourself")
	}
	if _, err := s.profiles.GetProfile(ctx, addresseeID); err != nil {
		return f, svcErr.FromStore(op, err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindBetween(ctx, requesterID, addresseeID)
		if err != nil {
			return err
		}

		if existing != nil {
			switch existing.Status {
			case db.FriendshipPending, db.FriendshipAccepted:
				return svcErr.Conflict(op, fmt.Sprintf("friendship between %d and %d is already %s",
					requesterID, addresseeID, existing.Status))
			}
			ok, err := repo.Reopen(ctx, existing.ID, requesterID, addresseeID)
			if err != nil {
				return err
			}
			if !ok {
				return svcErr.Conflict(op, "friendship changed concurrently")
			}
			f, err = repo.GetByID(ctx, existing.ID)
			return err
		}

		f = db.Friendship{
			RequesterID: requesterID,
			AddresseeID: addresseeID,
			Status:      db.FriendshipPending,
		}
		created, err := repo.Create(ctx, &f)
		if err != nil {
			return err
		}
		if !created {
			return svcErr.Conflict(op, fmt.Sprintf("friendship between %d and %d already exists",
				requesterID, addresseeID))
		}
		return nil
	})
	if err != nil {
		return db.Friendship{}, svcErr.FromStore(op, err)
	}

	s.log.Debug("friend request sent", "friendship_id", f.ID, "requester", requesterID, "addressee", addresseeID)
	events.Emit(ctx, s.publisher, s.log, events.FriendshipRequested, requesterID, friendshipPayload(f))
	return f, nil
}

// Accept moves a pending request to accepted. Only the addressee may accept.
func (s *Service) Accept(ctx context.Context, actorID, friendshipID uint64) (db.Friendship, error) {
	f, err := s.respond(ctx, "accept", actorID, friendshipID, db.FriendshipAccepted)
	if err == nil {
		events.Emit(ctx, s.publisher, s.log, events.FriendshipAccepted, actorID, friendshipPayload(f))
	}
	return f, err
}

// Reject moves a pending request to rejected. Only the addressee may reject.
func (s *Service) Reject(ctx context.Context, actorID, friendshipID uint64) (db.Friendship, error) {
	f, err := s.respond(ctx, "reject", actorID, friendshipID, db.FriendshipRejected)
	if err == nil {
		events.Emit(ctx, s.publisher, s.log, events.FriendshipRejected, actorID, friendshipPayload(f))
	}
	return f, err
}

func (s *Service) respond(ctx context.Context, action string, actorID, friendshipID uint64, to db.FriendshipStatus) (f db.Friendship, err error) {
	op := "friendship." + action
	defer func() { metrics.IncFriendship(action, metrics.Status(err)) }()

	f, err = s.repo.GetByID(ctx, friendshipID)
	if err != nil {
		return db.Friendship{}, svcErr.FromStore(op, err)
	}
	if f.AddresseeID != actorID {
		return db.Friendship{}, svcErr.Unauthorized(op, fmt.Sprintf("user %d is not the addressee of friendship %d", actorID, friendshipID))
	}

	ok, err := s.repo.Transition(ctx, friendshipID, db.FriendshipPending, to)
	if err != nil {
		return db.Friendship{}, svcErr.FromStore(op, err)
	}
	if !ok {
		// lost a race: report what the row is now, or that it is gone
		current, err := s.repo.GetByID(ctx, friendshipID)
		if err != nil {
			return db.Friendship{}, svcErr.FromStore(op, err)
		}
		return db.Friendship{}, svcErr.Conflict(op, fmt.Sprintf("friendship %d is %s, not pending", friendshipID, current.Status))
	}

	f, err = s.repo.GetByID(ctx, friendshipID)
	if err != nil {
		return db.Friendship{}, svcErr.FromStore(op, err)
	}
	return f, nil
}

// Remove deletes the row in any state. Either party may remove it.
func (s *Service) Remove(ctx context.Context, actorID, friendshipID uint64) (err error) {
	const op = "friendship.remove"
	defer func() { metrics.IncFriendship("remove", metrics.Status(err)) }()

	f, err := s.repo.GetByID(ctx, friendshipID)
	if err != nil {
		return svcErr.FromStore(op, err)
	}
	if f.RequesterID != actorID && f.AddresseeID != actorID {
		return svcErr.Unauthorized(op, fmt.Sprintf("user %d is not part of friendship %d", actorID, friendshipID))
	}

	deleted, err := s.repo.Delete(ctx, friendshipID)
	if err != nil {
		return svcErr.FromStore(op, err)
	}
	if !deleted {
		return svcErr.NotFound(op, fmt.Sprintf("friendship %d not found", friendshipID))
	}

	events.Emit(ctx, s.publisher, s.log, events.FriendshipRemoved, actorID, friendshipPayload(f))
	return nil
}

// List returns the accepted friends and the pending requests of userID.
// Rejected rows are not listed.
func (s *Service) List(ctx context.Context, userID uint64) (Lists, error) {
	const op = "friendship.list"
	var out Lists
	if userID == 0 {
		return out, svcErr.Invalid(op, "user id must be set")
	}

	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return out, svcErr.FromStore(op, err)
	}

	ids := make([]uint64, 0, len(rows))
	for _, f := range rows {
		ids = append(ids, f.Other(userID))
	}
	profiles, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		return out, svcErr.FromStore(op, err)
	}

	for _, f := range rows {
		otherID := f.Other(userID)
		other, ok := profiles[otherID]
		if !ok {
			other = db.Profile{ID: otherID}
		}
		e := Entry{Friendship: f, Other: other}

		switch {
		case f.Status == db.FriendshipAccepted:
			out.Friends = append(out.Friends, e)
		case f.Status == db.FriendshipPending && f.AddresseeID == userID:
			out.Incoming = append(out.Incoming, e)
		case f.Status == db.FriendshipPending:
			out.Outgoing = append(out.Outgoing, e)
		}
	}
	return out, nil
}

func friendshipPayload(f db.Friendship) map[string]any {
	return map[string]any{
		"friendship_id": f.ID,
		"requester_id":  f.RequesterID,
		"addressee_id":  f.AddresseeID,
		"status":        f.Status,
	}
}
