package app

import (
	"context"
	"fmt"
	"time"

	"daybook/api/internal/auth"
	"daybook/api/internal/util"
)

// Session is an authenticated caller as the HTTP boundary sees it. The core
// document operations only ever receive the UserID.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	ExpiresAt    time.Time
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.creds.SignUp(ctx, email, password, displayName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user.ID, user.DisplayName)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.creds.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user.ID, user.DisplayName)
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		full, err := s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, fmt.Errorf("load user: %w", err)
		}
		user = full
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user.ID, user.DisplayName)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) issueSession(ctx context.Context, userID, userName string) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  userID,
		Name: userName,
		JTI:  util.NewID(""),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshToken := util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), userID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       userID,
		UserName:     userName,
		ExpiresAt:    expiresAt,
	}, nil
}
