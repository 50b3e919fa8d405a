package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/db/dbtest"
	"github.com/oggyb/event-network/internal/repository"
)

func TestProfileRepository_Registrants(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewProfileRepository(gdb)

	dbtest.SeedProfiles(t, gdb, 10,
		db.Profile{ID: 3, Interests: []string{"go"}},
		db.Profile{ID: 1, Interests: []string{"ux"}},
	)
	dbtest.SeedProfiles(t, gdb, 0, db.Profile{ID: 7})
	require.NoError(t, gdb.Create(&db.Registration{EventID: 20, UserID: 7}).Error)

	regs, err := repo.ListRegistrants(ctx, 10)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, uint64(1), regs[0].ID)
	assert.Equal(t, []string{"ux"}, regs[0].Interests)

	events, err := repo.ListEventIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20}, events)

	_, err = repo.GetProfile(ctx, 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	byID, err := repo.GetProfiles(ctx, []uint64{1, 7, 99})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
}

func TestMatchRepository_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewMatchRepository(gdb)

	first := []db.Match{
		{UserID: 1, MatchedUserID: 2, Score: 50, Reasons: []string{"a"}},
		{UserID: 2, MatchedUserID: 1, Score: 50, Reasons: []string{"a"}},
		{UserID: 1, MatchedUserID: 3, Score: 90},
	}
	epoch, err := repo.ReplaceForEvent(ctx, 5, first)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	rows, next, err := repo.ListForUser(ctx, 1, 5, "", 0)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(3), rows[0].MatchedUserID)
	assert.Equal(t, 90, rows[0].Score)
	assert.Equal(t, []string{"a"}, rows[1].Reasons)

	// second generation fully replaces the first
	epoch, err = repo.ReplaceForEvent(ctx, 5, []db.Match{{UserID: 1, MatchedUserID: 4, Score: 40}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epoch)

	rows, _, err = repo.ListForUser(ctx, 1, 5, "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(4), rows[0].MatchedUserID)

	var total int64
	gdb.Model(&db.Match{}).Where("event_id = ?", 5).Count(&total)
	assert.EqualValues(t, 1, total)

	// an empty generation clears the event
	_, err = repo.ReplaceForEvent(ctx, 5, nil)
	require.NoError(t, err)
	rows, _, err = repo.ListForUser(ctx, 1, 5, "", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	cur, err := repo.CurrentEpoch(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cur)
}

func TestMatchRepository_StaleEpochRowsAreInvisible(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewMatchRepository(gdb)

	_, err := repo.ReplaceForEvent(ctx, 1, []db.Match{{UserID: 1, MatchedUserID: 2, Score: 60}})
	require.NoError(t, err)

	// rows staged for a future epoch (e.g. an aborted writer) must not show
	require.NoError(t, gdb.Create(&db.Match{UserID: 1, MatchedUserID: 9, EventID: 1, Epoch: 2, Score: 99}).Error)

	rows, _, err := repo.ListForUser(ctx, 1, 1, "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(2), rows[0].MatchedUserID)
}

func TestMatchRepository_Pagination(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewMatchRepository(gdb)

	_, err := repo.ReplaceForEvent(ctx, 1, []db.Match{
		{UserID: 1, MatchedUserID: 2, Score: 80},
		{UserID: 1, MatchedUserID: 3, Score: 60},
	})
	require.NoError(t, err)
	_, err = repo.ReplaceForEvent(ctx, 2, []db.Match{
		{UserID: 1, MatchedUserID: 2, Score: 60},
		{UserID: 1, MatchedUserID: 5, Score: 45},
	})
	require.NoError(t, err)

	var got []db.Match
	token := ""
	for page := 0; page < 5; page++ {
		rows, next, err := repo.ListForUser(ctx, 1, 0, token, 1)
		require.NoError(t, err)
		got = append(got, rows...)
		if next == nil {
			break
		}
		token = *next
	}

	require.Len(t, got, 4)
	assert.Equal(t, []int{80, 60, 60, 45}, []int{got[0].Score, got[1].Score, got[2].Score, got[3].Score})
	// tie on 60 ordered by event then matched user
	assert.Equal(t, uint64(1), got[1].EventID)
	assert.Equal(t, uint64(2), got[2].EventID)

	_, _, err = repo.ListForUser(ctx, 1, 0, "%%%", 1)
	assert.Error(t, err)
}

func TestFriendshipRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewFriendshipRepository(gdb)

	f := &db.Friendship{RequesterID: 2, AddresseeID: 1, Status: db.FriendshipPending}
	created, err := repo.Create(ctx, f)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(1), f.PairLow)

	// same pair, other orientation
	created, err = repo.Create(ctx, &db.Friendship{RequesterID: 1, AddresseeID: 2, Status: db.FriendshipPending})
	require.NoError(t, err)
	assert.False(t, created)

	found, err := repo.FindBetween(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, f.ID, found.ID)

	none, err := repo.FindBetween(ctx, 1, 3)
	require.NoError(t, err)
	assert.Nil(t, none)

	ok, err := repo.Transition(ctx, f.ID, db.FriendshipPending, db.FriendshipRejected)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Transition(ctx, f.ID, db.FriendshipPending, db.FriendshipAccepted)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Reopen(ctx, f.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, db.FriendshipPending, got.Status)
	assert.Equal(t, uint64(1), got.RequesterID)

	rows, err := repo.ListForUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	ok, err = repo.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageRepository_ListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewMessageRepository(gdb)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []db.Message{
		{ID: "m1", SenderID: 2, ReceiverID: 1, Content: "hi", CreatedAt: base},
		{ID: "m2", SenderID: 2, ReceiverID: 1, Content: "there", CreatedAt: base.Add(time.Minute)},
		{ID: "m3", SenderID: 3, ReceiverID: 1, Content: "yo", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m4", SenderID: 1, ReceiverID: 2, Content: "hey", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range msgs {
		require.NoError(t, repo.Create(ctx, &msgs[i]))
	}

	list, err := repo.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "m4", list[0].ID)
	assert.Equal(t, "m1", list[3].ID)

	flipped, err := repo.MarkRead(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, flipped, 2)
	assert.True(t, flipped[0].Read)

	var unread int64
	gdb.Model(&db.Message{}).Where("receiver_id = ? AND is_read = ?", 1, false).Count(&unread)
	assert.EqualValues(t, 1, unread) // m3 from user 3 untouched

	again, err := repo.MarkRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestPostRepository_Counters(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewPostRepository(gdb)

	post := &db.Post{UserID: 1, Content: "hello"}
	require.NoError(t, repo.Create(ctx, post))

	p, err := repo.Like(ctx, 2, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.LikesCount)

	_, err = repo.Like(ctx, 2, post.ID)
	assert.ErrorIs(t, err, repository.ErrAlreadyLiked)

	liked, err := repo.HasLiked(ctx, 2, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	p, err = repo.Unlike(ctx, 2, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.LikesCount)

	_, err = repo.Unlike(ctx, 2, post.ID)
	assert.ErrorIs(t, err, repository.ErrNotLiked)

	// like on a missing post rolls back the like row
	_, err = repo.Like(ctx, 2, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var likes int64
	gdb.Model(&db.Like{}).Count(&likes)
	assert.Zero(t, likes)

	c := &db.Comment{PostID: post.ID, UserID: 3, Content: "nice"}
	p, err = repo.AddComment(ctx, c)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.CommentsCount)

	comments, err := repo.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	p, err = repo.DeleteComment(ctx, *c)
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.CommentsCount)

	_, err = repo.DeleteComment(ctx, *c)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPostRepository_DecrementFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewPostRepository(gdb)

	post := &db.Post{UserID: 1, Content: "drifted"}
	require.NoError(t, repo.Create(ctx, post))
	// a like row without a counted like: the counter must not go negative
	require.NoError(t, gdb.Create(&db.Like{UserID: 5, PostID: post.ID}).Error)

	p, err := repo.Unlike(ctx, 5, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.LikesCount)
}

func TestPostRepository_ConcurrentLikes(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewPostRepository(gdb)

	post := &db.Post{UserID: 1, Content: "popular"}
	require.NoError(t, repo.Create(ctx, post))

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		wg.Add(2)
		userID := uint64(100 + i)
		go func() {
			defer wg.Done()
			_, err := repo.Like(ctx, userID, post.ID)
			errs <- err
		}()
		// the same user racing a duplicate like
		go func() {
			defer wg.Done()
			_, err := repo.Like(ctx, userID, post.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, repository.ErrAlreadyLiked), "unexpected error %v", err)
	}
	assert.Equal(t, n, succeeded)

	p, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, p.LikesCount)
}
