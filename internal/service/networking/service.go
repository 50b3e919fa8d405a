package networking

import (
	"context"
	"errors"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/event-network/internal/app"
	svcErr "github.com/oggyb/event-network/internal/errors"
	"github.com/oggyb/event-network/internal/matching"
	"github.com/oggyb/event-network/internal/repository"
	"github.com/oggyb/event-network/internal/service/conversation"
	"github.com/oggyb/event-network/internal/service/engagement"
	"github.com/oggyb/event-network/internal/service/friendship"
	"github.com/oggyb/event-network/internal/utils/pagination"
)

// maxPageSize caps FetchMatches pages.
const maxPageSize = 100

// Service implements the networking gRPC API on top of the domain services.
type Service struct {
	appCtx *app.AppContext

	matches       *repository.MatchRepository
	job           *matching.Job
	friendships   *friendship.Service
	conversations *conversation.Service
	engagement    *engagement.Service
}

// NewNetworkingService creates the service with dependencies from AppContext.
// job is shared with the recompute scheduler.
func NewNetworkingService(appCtx *app.AppContext, job *matching.Job) *Service {
	log := appCtx.Logger
	conversations := conversation.NewService(appCtx.DB, appCtx.Feed, appCtx.FeedRelay, appCtx.Publisher, log).
		WithPublishTimeout(appCtx.Config.Feed.PublishTimeout)
	return &Service{
		appCtx:        appCtx,
		matches:       repository.NewMatchRepository(appCtx.DB),
		job:           job,
		friendships:   friendship.NewService(appCtx.DB, appCtx.Publisher, log),
		conversations: conversations,
		engagement:    engagement.NewService(appCtx.DB, appCtx.Publisher, log),
	}
}

// cachedPage is the Redis entry of a user's first match page.
type cachedPage struct {
	Limit   int              `json:"limit"`
	Matches []map[string]any `json:"matches"`
	Next    string           `json:"next,omitempty"`
}

// FetchMatches returns the viewer's matches ordered by score.
//
// Request: user_id, optional event_id (all events when absent), limit and
// page_token. The first page is served from Redis when cached.
func (s *Service) FetchMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.appCtx.Logger
	userID, err := uintField(req, "user_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	eventID, err := optUintField(req, "event_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	limit, err := boundedIntField(req, "limit", maxPageSize)
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	token := stringField(req, "page_token")

	rc := s.appCtx.RedisCache
	key := ""
	if rc != nil && token == "" {
		// read before the store query: a page filled across a recompute
		// lands under the old generation and is never served
		gen, err := rc.MatchGeneration(ctx, eventID)
		if err != nil {
			log.Warn("match cache generation read failed", "event_id", eventID, "err", err)
		} else {
			key = rc.KeyForMatches(userID, eventID, gen)
		}
	}
	if key != "" {
		var page cachedPage
		hit, err := rc.GetJSON(ctx, key, &page)
		if err != nil {
			log.Warn("match cache read failed", "key", key, "err", err)
		}
		if hit && page.Limit == limit {
			log.Debug("FetchMatches cache hit", "user_id", userID, "event_id", eventID)
			return pageResponse(page)
		}
	}

	rows, next, err := s.matches.ListForUser(ctx, userID, eventID, token, limit)
	if errors.Is(err, pagination.ErrInvalidToken) {
		return nil, svcErr.InvalidArgument("page_token is invalid")
	}
	if err != nil {
		log.Error("ListForUser failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(svcErr.FromStore("networking.fetch_matches", err))
	}

	page := cachedPage{Limit: limit, Matches: make([]map[string]any, len(rows))}
	for i, m := range rows {
		page.Matches[i] = matchDoc(m)
	}
	if next != nil {
		page.Next = *next
	}

	if key != "" {
		if err := rc.SetJSON(ctx, key, page, s.appCtx.Config.Matching.CacheTTL); err != nil {
			log.Warn("match cache write failed", "key", key, "err", err)
		}
	}

	log.Debug("FetchMatches result", "user_id", userID, "count", len(rows), "next_token", page.Next)
	return pageResponse(page)
}

func pageResponse(page cachedPage) (*structpb.Struct, error) {
	list := make([]any, len(page.Matches))
	for i, m := range page.Matches {
		list[i] = m
	}
	out := map[string]any{"matches": list}
	if page.Next != "" {
		out["next_page_token"] = page.Next
	}
	return respond(out)
}

// RecomputeMatches rebuilds the match set of event_id on demand.
func (s *Service) RecomputeMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	eventID, err := uintField(req, "event_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	res, err := s.job.Run(ctx, eventID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(map[string]any{
		"event_id":     id(res.EventID),
		"epoch":        res.Epoch,
		"registrants":  res.Registrants,
		"pairs_scored": res.PairsScored,
		"persisted":    res.Persisted,
		"took_ms":      res.Took.Milliseconds(),
	})
}

func (s *Service) SendFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "requester_id", "addressee_id")
	if err != nil {
		return nil, err
	}
	f, err := s.friendships.SendRequest(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(friendshipDoc(f))
}

func (s *Service) AcceptFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "friendship_id")
	if err != nil {
		return nil, err
	}
	f, err := s.friendships.Accept(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(friendshipDoc(f))
}

func (s *Service) RejectFriendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "friendship_id")
	if err != nil {
		return nil, err
	}
	f, err := s.friendships.Reject(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(friendshipDoc(f))
}

func (s *Service) RemoveFriend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "friendship_id")
	if err != nil {
		return nil, err
	}
	if err := s.friendships.Remove(ctx, ids[0], ids[1]); err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(map[string]any{"removed": true})
}

func (s *Service) ListFriends(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uintField(req, "user_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	lists, err := s.friendships.List(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(map[string]any{
		"friends":  entriesDoc(lists.Friends),
		"incoming": entriesDoc(lists.Incoming),
		"outgoing": entriesDoc(lists.Outgoing),
	})
}

func (s *Service) FetchConversations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uintField(req, "user_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	convs, err := s.conversations.FetchConversations(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(conversationsDoc(convs))
}

func (s *Service) SendMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "sender_id", "receiver_id")
	if err != nil {
		return nil, err
	}
	m, err := s.conversations.SendMessage(ctx, ids[0], ids[1], stringField(req, "content"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(messageDoc(m))
}

func (s *Service) MarkRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "sender_id")
	if err != nil {
		return nil, err
	}
	flipped, err := s.conversations.MarkRead(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(map[string]any{"marked": len(flipped)})
}

// WatchConversations streams the caller's full conversation list: once on
// open and again after every change, until the client goes away.
func (s *Service) WatchConversations(req *structpb.Struct, stream ConversationStream) error {
	userID, err := uintField(req, "user_id")
	if err != nil {
		return svcErr.InvalidArgument(err.Error())
	}
	ctx := stream.Context()

	session, err := s.conversations.Open(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	defer session.Close()
	s.appCtx.Logger.Debug("conversation watch opened", "user_id", userID)

	send := func() error {
		out, err := respond(conversationsDoc(session.Conversations()))
		if err != nil {
			return err
		}
		return stream.Send(out)
	}
	if err := send(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case <-session.Updates():
			if err := send(); err != nil {
				return err
			}
		}
	}
}

func (s *Service) CreatePost(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uintField(req, "user_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	p, err := s.engagement.CreatePost(ctx, userID, stringField(req, "content"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(postDoc(p))
}

func (s *Service) LikePost(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "post_id")
	if err != nil {
		return nil, err
	}
	p, err := s.engagement.Like(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(postDoc(p))
}

func (s *Service) UnlikePost(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "post_id")
	if err != nil {
		return nil, err
	}
	p, err := s.engagement.Unlike(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(postDoc(p))
}

func (s *Service) AddComment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "post_id")
	if err != nil {
		return nil, err
	}
	c, p, err := s.engagement.AddComment(ctx, ids[0], ids[1], stringField(req, "content"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(map[string]any{"comment": commentDoc(c), "post": postDoc(p)})
}

func (s *Service) DeleteComment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, err := uintFields(req, "user_id", "comment_id")
	if err != nil {
		return nil, err
	}
	p, err := s.engagement.DeleteComment(ctx, ids[0], ids[1])
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return respond(postDoc(p))
}

// uintFields reads several required ids, failing with InvalidArgument.
func uintFields(req *structpb.Struct, names ...string) ([]uint64, error) {
	out := make([]uint64, len(names))
	for i, name := range names {
		v, err := uintField(req, name)
		if err != nil {
			return nil, svcErr.InvalidArgument(err.Error())
		}
		out[i] = v
	}
	return out, nil
}

func respond(doc map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return out, nil
}
