package networking

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/service/conversation"
	"github.com/oggyb/event-network/internal/service/friendship"
)

// uintField reads a required id. Ids travel as decimal strings; plain
// numbers are accepted too.
func uintField(req *structpb.Struct, name string) (uint64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := parseUint(v)
	if err != nil {
		return 0, fmt.Errorf("%s %w", name, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}
	return n, nil
}

// optUintField reads an optional id, 0 when absent.
func optUintField(req *structpb.Struct, name string) (uint64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return 0, nil
	}
	n, err := parseUint(v)
	if err != nil {
		return 0, fmt.Errorf("%s %w", name, err)
	}
	return n, nil
}

func parseUint(v *structpb.Value) (uint64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, errors.New("must be a valid uint64")
		}
		return n, nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n < 0 || n != math.Trunc(n) || n >= 1<<64 {
			return 0, errors.New("must be a non-negative integer")
		}
		return uint64(n), nil
	default:
		return 0, errors.New("must be a string or number")
	}
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

// boundedIntField reads an optional integer in [0, upper], 0 when absent.
// Fractions, negatives and out of range values are rejected.
func boundedIntField(req *structpb.Struct, name string, upper int) (int, error) {
	n, err := optUintField(req, name)
	if err != nil || n > uint64(upper) {
		return 0, fmt.Errorf("%s must be between 0 and %d", name, upper)
	}
	return int(n), nil
}

func id(v uint64) string { return strconv.FormatUint(v, 10) }

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func profileDoc(p db.Profile) map[string]any {
	return map[string]any{
		"id":           id(p.ID),
		"display_name": p.DisplayName,
		"interests":    stringList(p.Interests),
		"company":      p.Company,
		"role":         p.Role,
	}
}

func matchDoc(m db.Match) map[string]any {
	return map[string]any{
		"user_id":         id(m.UserID),
		"matched_user_id": id(m.MatchedUserID),
		"event_id":        id(m.EventID),
		"score":           m.Score,
		"reasons":         stringList(m.Reasons),
	}
}

func friendshipDoc(f db.Friendship) map[string]any {
	return map[string]any{
		"friendship_id": id(f.ID),
		"requester_id":  id(f.RequesterID),
		"addressee_id":  id(f.AddresseeID),
		"status":        string(f.Status),
		"updated_at":    timestamp(f.UpdatedAt),
	}
}

func entriesDoc(entries []friendship.Entry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		doc := friendshipDoc(e.Friendship)
		doc["user"] = profileDoc(e.Other)
		out[i] = doc
	}
	return out
}

func messageDoc(m db.Message) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"sender_id":   id(m.SenderID),
		"receiver_id": id(m.ReceiverID),
		"content":     m.Content,
		"read":        m.Read,
		"created_at":  timestamp(m.CreatedAt),
	}
}

func conversationsDoc(convs []conversation.Conversation) map[string]any {
	list := make([]any, len(convs))
	for i, c := range convs {
		list[i] = map[string]any{
			"counterpart_id": id(c.CounterpartID),
			"unread_count":   c.UnreadCount,
			"last_message":   messageDoc(c.LastMessage),
		}
	}
	return map[string]any{"conversations": list}
}

func postDoc(p db.Post) map[string]any {
	return map[string]any{
		"post_id":        id(p.ID),
		"user_id":        id(p.UserID),
		"content":        p.Content,
		"likes_count":    p.LikesCount,
		"comments_count": p.CommentsCount,
	}
}

func commentDoc(c db.Comment) map[string]any {
	return map[string]any{
		"comment_id": id(c.ID),
		"post_id":    id(c.PostID),
		"user_id":    id(c.UserID),
		"content":    c.Content,
		"created_at": timestamp(c.CreatedAt),
	}
}
