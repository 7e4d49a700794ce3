package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

func newSessionToken() string {
	return uuid.NewString()
}

// session resolves the caller's token and watched set without writing
// anything. Related lookups always get a token so their watched set can grow;
// other lookups only track an explicit one.
func (s *Service) session(ctx context.Context, req Request) (string, map[string]struct{}, error) {
	token := req.SessionToken
	if token == "" {
		if req.Mode != tiktok.ModeRelated || req.ItemID != 0 {
			return "", nil, nil
		}
		return s.newToken(), map[string]struct{}{}, nil
	}

	sess, err := s.store.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return token, map[string]struct{}{}, nil
	}
	if err != nil {
		return "", nil, err
	}
	return token, sess.WatchedSet(), nil
}

// remember adds contentID to the session, creating the session on first use.
// Only called after a lookup succeeded, so failures leave no rows behind.
func (s *Service) remember(ctx context.Context, token, contentID string) error {
	if _, err := s.store.CreateSession(ctx, token); err != nil {
		return err
	}
	return s.store.AddWatched(ctx, token, contentID)
}
