package networking_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/app"
	"github.com/oggyb/event-network/internal/cache"
	"github.com/oggyb/event-network/internal/config"
	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/db/dbtest"
	"github.com/oggyb/event-network/internal/matching"
	"github.com/oggyb/event-network/internal/repository"
	"github.com/oggyb/event-network/internal/server"
	"github.com/oggyb/event-network/internal/service/networking"
)

type env struct {
	gdb    *gorm.DB
	mr     *miniredis.Miniredis
	rc     *cache.RedisCache
	client *networking.Client
	conn   *grpc.ClientConn
}

func setup(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	gdb := dbtest.Open(t)
	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Matching.CacheTTL = time.Minute
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	appCtx := app.New(cfg, gdb, rc, log)
	job := matching.NewJob(
		repository.NewProfileRepository(gdb),
		repository.NewMatchRepository(gdb),
		rc, appCtx.Publisher, log, matching.Options{Workers: 2},
	)

	lis := bufconn.Listen(1 << 20)
	srv, _ := server.NewGRPCServer(log, networking.NewRegistrar(appCtx, job))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &env{gdb: gdb, mr: mr, rc: rc, client: networking.NewClient(conn), conn: conn}
}

func req(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func (e *env) call(t *testing.T, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.client.Call(ctx, method, req(t, fields))
}

func (e *env) mustCall(t *testing.T, method string, fields map[string]any) map[string]any {
	t.Helper()
	out, err := e.call(t, method, fields)
	require.NoError(t, err, method)
	return out.AsMap()
}

func TestMatches_RecomputeFetchAndCache(t *testing.T) {
	e := setup(t)
	dbtest.SeedProfiles(t, e.gdb, 1,
		db.Profile{ID: 1, Interests: []string{"x", "y", "z"}, Company: "Acme", Role: "builder"},
		db.Profile{ID: 2, Interests: []string{"y", "z"}, Company: "Acme", Role: "design"},
		db.Profile{ID: 3, Interests: []string{"y", "z", "x"}},
	)

	res := e.mustCall(t, "RecomputeMatches", map[string]any{"event_id": "1"})
	assert.EqualValues(t, 1, res["epoch"])
	assert.EqualValues(t, 3, res["registrants"])

	page := e.mustCall(t, "FetchMatches", map[string]any{"user_id": "1", "event_id": "1", "limit": 1})
	matches := page["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	assert.Equal(t, "2", first["matched_user_id"])
	assert.EqualValues(t, 75, first["score"])
	assert.Len(t, first["reasons"], 3)
	token, ok := page["next_page_token"].(string)
	require.True(t, ok)
	assert.True(t, e.mr.Exists(e.rc.KeyForMatches(1, 1, 1)))

	next := e.mustCall(t, "FetchMatches", map[string]any{"user_id": "1", "event_id": "1", "limit": 1, "page_token": token})
	matches = next["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "3", matches[0].(map[string]any)["matched_user_id"])
	assert.NotContains(t, next, "next_page_token")

	// served from cache: identical to the first response
	cached := e.mustCall(t, "FetchMatches", map[string]any{"user_id": "1", "event_id": "1", "limit": 1})
	assert.Equal(t, page, cached)

	// a recompute moves the event to a new cache generation
	e.mustCall(t, "RecomputeMatches", map[string]any{"event_id": 1})
	gen, err := e.rc.MatchGeneration(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	assert.False(t, e.mr.Exists(e.rc.KeyForMatches(1, 1, 2)))

	_, err = e.call(t, "FetchMatches", map[string]any{"user_id": "1", "page_token": "%%%"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = e.call(t, "FetchMatches", map[string]any{"user_id": "abc"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = e.call(t, "RecomputeMatches", map[string]any{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestFetchMatches_LimitValidation(t *testing.T) {
	e := setup(t)
	for _, limit := range []any{-1, 2.5, 101, 1e30, "ten"} {
		_, err := e.call(t, "FetchMatches", map[string]any{"user_id": "1", "limit": limit})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "limit %v", limit)
	}
	e.mustCall(t, "FetchMatches", map[string]any{"user_id": "1", "limit": 100})
	e.mustCall(t, "FetchMatches", map[string]any{"user_id": "1", "limit": "7"})
}

func TestFetchMatches_DepartedAttendeeIsNotServedFromCache(t *testing.T) {
	e := setup(t)
	dbtest.SeedProfiles(t, e.gdb, 1,
		db.Profile{ID: 1, Interests: []string{"a", "b", "c"}},
		db.Profile{ID: 2, Interests: []string{"a", "b", "c"}},
	)
	e.mustCall(t, "RecomputeMatches", map[string]any{"event_id": "1"})

	for _, fields := range []map[string]any{
		{"user_id": "2", "event_id": "1"},
		{"user_id": "2"},
	} {
		page := e.mustCall(t, "FetchMatches", fields)
		require.Len(t, page["matches"], 1)
	}

	require.NoError(t, e.gdb.Where("event_id = ? AND user_id = ?", 1, 2).Delete(&db.Registration{}).Error)
	e.mustCall(t, "RecomputeMatches", map[string]any{"event_id": "1"})

	for _, fields := range []map[string]any{
		{"user_id": "2", "event_id": "1"},
		{"user_id": "2"},
	} {
		page := e.mustCall(t, "FetchMatches", fields)
		assert.Empty(t, page["matches"], "%v", fields)
	}
}

func TestFetchMatches_LateFillOfOldGenerationIsIgnored(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	dbtest.SeedProfiles(t, e.gdb, 1,
		db.Profile{ID: 1, Interests: []string{"a", "b", "c"}},
		db.Profile{ID: 2, Interests: []string{"a", "b", "c"}},
	)

	// a reader that saw generation 0 finishes its fill after the recompute
	e.mustCall(t, "RecomputeMatches", map[string]any{"event_id": "1"})
	stale := map[string]any{"limit": 0, "matches": []map[string]any{}}
	require.NoError(t, e.rc.SetJSON(ctx, e.rc.KeyForMatches(1, 1, 0), stale, time.Minute))

	page := e.mustCall(t, "FetchMatches", map[string]any{"user_id": "1", "event_id": "1"})
	assert.Len(t, page["matches"], 1)
}

func TestRecompute_LockHeldIsFailedPrecondition(t *testing.T) {
	e := setup(t)
	dbtest.SeedProfiles(t, e.gdb, 2, db.Profile{ID: 1}, db.Profile{ID: 2})

	_, err := e.rc.AcquireLock(context.Background(), e.rc.KeyForRecomputeLock(2), time.Minute)
	require.NoError(t, err)

	_, err = e.call(t, "RecomputeMatches", map[string]any{"event_id": "2"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestFriendships(t *testing.T) {
	e := setup(t)
	dbtest.SeedProfiles(t, e.gdb, 0,
		db.Profile{ID: 1, DisplayName: "Ana"},
		db.Profile{ID: 2, DisplayName: "Ben"},
	)

	f := e.mustCall(t, "SendFriendRequest", map[string]any{"requester_id": "1", "addressee_id": "2"})
	assert.Equal(t, "pending", f["status"])
	fid := f["friendship_id"].(string)

	_, err := e.call(t, "SendFriendRequest", map[string]any{"requester_id": "2", "addressee_id": "1"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = e.call(t, "AcceptFriendRequest", map[string]any{"user_id": "1", "friendship_id": fid})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	f = e.mustCall(t, "AcceptFriendRequest", map[string]any{"user_id": "2", "friendship_id": fid})
	assert.Equal(t, "accepted", f["status"])

	_, err = e.call(t, "RejectFriendRequest", map[string]any{"user_id": "2", "friendship_id": fid})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	lists := e.mustCall(t, "ListFriends", map[string]any{"user_id": "1"})
	friends := lists["friends"].([]any)
	require.Len(t, friends, 1)
	other := friends[0].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Ben", other["display_name"])

	e.mustCall(t, "RemoveFriend", map[string]any{"user_id": "2", "friendship_id": fid})
	_, err = e.call(t, "RemoveFriend", map[string]any{"user_id": "2", "friendship_id": fid})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMessagesAndWatch(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := e.client.WatchConversations(ctx, req(t, map[string]any{"user_id": "1"}))
	require.NoError(t, err)

	initial, err := stream.Recv()
	require.NoError(t, err)
	assert.Empty(t, initial.AsMap()["conversations"])

	msg := e.mustCall(t, "SendMessage", map[string]any{"sender_id": "2", "receiver_id": "1", "content": "see you at the keynote"})
	assert.Equal(t, false, msg["read"])

	update, err := stream.Recv()
	require.NoError(t, err)
	convs := update.AsMap()["conversations"].([]any)
	require.Len(t, convs, 1)
	conv := convs[0].(map[string]any)
	assert.Equal(t, "2", conv["counterpart_id"])
	assert.EqualValues(t, 1, conv["unread_count"])
	assert.Equal(t, msg["id"], conv["last_message"].(map[string]any)["id"])

	marked := e.mustCall(t, "MarkRead", map[string]any{"user_id": "1", "sender_id": "2"})
	assert.EqualValues(t, 1, marked["marked"])

	for {
		update, err := stream.Recv()
		require.NoError(t, err)
		convs := update.AsMap()["conversations"].([]any)
		if len(convs) == 1 && convs[0].(map[string]any)["unread_count"] == float64(0) {
			break
		}
	}

	fetched := e.mustCall(t, "FetchConversations", map[string]any{"user_id": "1"})
	convs = fetched["conversations"].([]any)
	require.Len(t, convs, 1)
	assert.EqualValues(t, 0, convs[0].(map[string]any)["unread_count"])

	_, err = e.call(t, "SendMessage", map[string]any{"sender_id": "2", "receiver_id": "1", "content": "  "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPostsLikesComments(t *testing.T) {
	e := setup(t)

	post := e.mustCall(t, "CreatePost", map[string]any{"user_id": "1", "content": "slides are up"})
	pid := post["post_id"].(string)

	liked := e.mustCall(t, "LikePost", map[string]any{"user_id": "2", "post_id": pid})
	assert.EqualValues(t, 1, liked["likes_count"])

	_, err := e.call(t, "LikePost", map[string]any{"user_id": "2", "post_id": pid})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	unliked := e.mustCall(t, "UnlikePost", map[string]any{"user_id": "2", "post_id": pid})
	assert.EqualValues(t, 0, unliked["likes_count"])

	_, err = e.call(t, "UnlikePost", map[string]any{"user_id": "2", "post_id": pid})
	assert.Equal(t, codes.NotFound, status.Code(err))

	added := e.mustCall(t, "AddComment", map[string]any{"user_id": "3", "post_id": pid, "content": "thanks!"})
	comment := added["comment"].(map[string]any)
	assert.EqualValues(t, 1, added["post"].(map[string]any)["comments_count"])

	_, err = e.call(t, "DeleteComment", map[string]any{"user_id": "2", "comment_id": comment["comment_id"]})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	after := e.mustCall(t, "DeleteComment", map[string]any{"user_id": "3", "comment_id": comment["comment_id"]})
	assert.EqualValues(t, 0, after["comments_count"])

	_, err = e.call(t, "LikePost", map[string]any{"user_id": "2", "post_id": "777"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth(t *testing.T) {
	e := setup(t)
	resp, err := healthpb.NewHealthClient(e.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
