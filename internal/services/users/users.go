// Package users registers accounts and wires them into the referral tree
package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/store"
)

// RegisterRequest is a new account. ReferralCode is the code of the user
// who invited them, if any.
type RegisterRequest struct {
	Email          string
	Username       string
	ReferralCode   string
	TelegramChatID *int64
	Language       string
}

// Service manages user accounts
type Service struct {
	store   store.Store
	baseURL string
	log     *logger.Logger
}

// NewService creates a new user service. baseURL prefixes referral links.
func NewService(st store.Store, baseURL string, log *logger.Logger) *Service {
	return &Service{
		store:   st,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.Component("users"),
	}
}

// Register creates the user and attaches them under their referrer
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.Validation("invalid email address %q", req.Email)
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	user := &models.User{
		Email:          email,
		Username:       username,
		ReferralCode:   NewReferralCode(username),
		TelegramChatID: req.TelegramChatID,
		Language:       language,
	}

	err := store.Transact(ctx, s.store, func(tx store.Repository) error {
		if code := strings.TrimSpace(req.ReferralCode); code != "" {
			referrer, err := tx.GetUserByReferralCode(ctx, code)
			if err != nil {
				return apperrors.Validation("unknown referral code %q", code)
			}
			user.ReferredBy = &referrer.ID
		}
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	event := s.log.Info().Str("user_id", user.ID.String()).Str("referral_code", user.ReferralCode)
	if user.ReferredBy != nil {
		event = event.Str("referred_by", user.ReferredBy.String())
	}
	event.Msg("User registered")
	return user, nil
}

// Get returns one user
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

// Referrals lists the users directly invited by userID
func (s *Service) Referrals(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	return s.store.ListReferredUsers(ctx, []uuid.UUID{userID})
}

// ReferralLink is the sign-up link carrying the user's code
func (s *Service) ReferralLink(user *models.User) string {
	return fmt.Sprintf("%s/register?ref=%s", s.baseURL, user.ReferralCode)
}

// NewReferralCode derives a readable code from name with a random suffix
func NewReferralCode(name string) string {
	base := slug.Make(name)
	if base == "" {
		base = "user"
	}
	if len(base) > 40 {
		base = strings.Trim(base[:40], "-")
	}
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8])
}
