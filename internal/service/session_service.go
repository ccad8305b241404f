package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/cache"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/firebase"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/line"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/config"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/membership"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/repository"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/token"
)

const oauthStateTTL = 10 * time.Minute

// SessionService orchestrates the login flows: link bootstrap, direct and
// selection logins, OAuth callback completion, refresh rotation and the
// primary-provider bridge.
type SessionService struct {
	codec       *token.Codec
	shops       repository.ShopRepository
	memberships *membership.Resolver
	exchanger   line.LoginExchanger
	states      cache.StateGuard
	minter      firebase.Minter
	cfg         config.Config
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewSessionService wires dependencies.
func NewSessionService(codec *token.Codec, shops repository.ShopRepository, memberships *membership.Resolver, exchanger line.LoginExchanger, states cache.StateGuard, minter firebase.Minter, cfg config.Config, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.L()
	}
	return &SessionService{
		codec:       codec,
		shops:       shops,
		memberships: memberships,
		exchanger:   exchanger,
		states:      states,
		minter:      minter,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("github.com/chonlathan-cloud/ProjectMIABackend/internal/service"),
	}
}

// BootstrapLink exchanges a pre-signed login link for an authorize URL.
func (s *SessionService) BootstrapLink(ctx context.Context, linkToken string) (string, error) {
	_, span := s.startSpan(ctx, "SessionService.BootstrapLink")
	defer span.End()

	claims, err := s.codec.Verify(linkToken, token.KindLoginLink)
	if err != nil || claims.ShopID == "" {
		if err != nil {
			span.RecordError(err)
		}
		return "", ErrUnauthorized("Invalid login link")
	}
	return s.mintAuthorizeURL(claims.ShopID)
}

// LoginURL builds an authorize URL without a shop binding. The callback
// will fall back to the caller's most recent membership.
func (s *SessionService) LoginURL(ctx context.Context) (string, error) {
	_, span := s.startSpan(ctx, "SessionService.LoginURL")
	defer span.End()

	return s.mintAuthorizeURL("")
}

func (s *SessionService) mintAuthorizeURL(shopID string) (string, error) {
	state, err := s.codec.Issue(token.Claims{
		ShopID: shopID,
		JTI:    uuid.NewString(),
	}, token.KindOAuthState, oauthStateTTL)
	if err != nil {
		return "", fmt.Errorf("mint state token: %w", err)
	}
	return s.exchanger.AuthorizeURL(state), nil
}

// Login handles direct chat logins. With a shop id it authenticates against
// that shop, creating an owner membership on first contact. Without one it
// authenticates against the caller's sole membership, or returns the
// candidate list when several shops qualify.
func (s *SessionService) Login(ctx context.Context, profile line.Profile, shopID string) (*LoginResult, error) {
	ctx, span := s.startSpan(ctx, "SessionService.Login")
	defer span.End()

	if profile.UserID == "" {
		return nil, ErrUnauthorized("Missing chat user id")
	}
	if shopID != "" {
		return s.loginWithShop(ctx, profile, shopID)
	}

	members, err := s.memberships.ListMemberships(ctx, profile.UserID, domain.ProviderLine)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch len(members) {
	case 0:
		return nil, ErrForbidden("No shop access for this account")
	case 1:
		return s.loginWithShop(ctx, profile, members[0].ShopID)
	}

	choices := make([]ShopChoice, 0, len(members))
	for _, member := range members {
		choice := ShopChoice{ShopID: member.ShopID, Role: member.Role}
		if shop, err := s.shops.GetShop(ctx, member.ShopID); err == nil {
			choice.ShopName = shop.ShopName
		}
		choices = append(choices, choice)
	}
	return &LoginResult{
		RequiresSelection: true,
		DisplayName:       profile.DisplayName,
		PictureURL:        profile.PictureURL,
		Shops:             choices,
	}, nil
}

// Select completes a login after the caller picked a shop from a
// SelectionRequired response.
func (s *SessionService) Select(ctx context.Context, profile line.Profile, shopID string) (*LoginResult, error) {
	ctx, span := s.startSpan(ctx, "SessionService.Select")
	defer span.End()

	if profile.UserID == "" || shopID == "" {
		return nil, ErrUnauthorized("Missing chat user id or shop id")
	}
	return s.loginWithShop(ctx, profile, shopID)
}

func (s *SessionService) loginWithShop(ctx context.Context, profile line.Profile, shopID string) (*LoginResult, error) {
	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound("Shop not found")
		}
		return nil, fmt.Errorf("load shop: %w", err)
	}

	member, err := s.memberships.EnsureOwnerMembership(ctx, shop.ShopID, profile.UserID, domain.ProviderLine)
	if err != nil {
		return nil, err
	}
	return s.issueSession(shop, member, profile)
}

func (s *SessionService) issueSession(shop domain.Shop, member domain.ShopMember, profile line.Profile) (*LoginResult, error) {
	claims := token.Claims{
		Subject:  profile.UserID,
		Provider: domain.ProviderLine,
		ShopID:   shop.ShopID,
		Role:     member.Role,
		Name:     profile.DisplayName,
		Picture:  profile.PictureURL,
	}

	access, err := s.codec.Issue(claims, token.KindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(claims, token.KindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.logger.Info("session issued",
		zap.String("shop_id", shop.ShopID),
		zap.String("user_id", profile.UserID),
		zap.String("role", member.Role))

	return &LoginResult{
		Token:        access,
		ShopID:       shop.ShopID,
		ShopName:     shop.ShopName,
		Role:         member.Role,
		DisplayName:  profile.DisplayName,
		PictureURL:   profile.PictureURL,
		RefreshToken: refresh,
	}, nil
}

// CompleteCallback finishes the OAuth dance: validates and consumes the
// state token, exchanges the code for a profile, then applies the same
// membership logic as a direct login. The caller is a browser redirect
// target, so a no-access outcome is rendered as an error redirect rather
// than a failure status.
func (s *SessionService) CompleteCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	ctx, span := s.startSpan(ctx, "SessionService.CompleteCallback")
	defer span.End()

	claims, err := s.codec.Verify(state, token.KindOAuthState)
	if err != nil {
		span.RecordError(err)
		return nil, ErrUnauthorized("Invalid or expired state")
	}

	if claims.JTI != "" {
		fresh, err := s.states.Consume(ctx, claims.JTI, oauthStateTTL)
		if err != nil {
			// Replay tracking is best effort; signature and expiry
			// still gate the callback when the store is down.
			s.logger.Warn("state replay check unavailable", zap.Error(err))
		} else if !fresh {
			return nil, ErrUnauthorized("State already used")
		}
	}

	profile, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	shopID := claims.ShopID
	if shopID == "" {
		members, err := s.memberships.ListMemberships(ctx, profile.UserID, domain.ProviderLine)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(members) == 0 {
			return &CallbackResult{RedirectURL: s.frontendURL(url.Values{"error": {"no_access"}})}, nil
		}
		shopID = members[0].ShopID
	}

	result, err := s.loginWithShop(ctx, *profile, shopID)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return &CallbackResult{RedirectURL: s.frontendURL(url.Values{"error": {"no_access"}})}, nil
		}
		return nil, err
	}

	params := url.Values{
		"token":  {result.Token},
		"shopId": {result.ShopID},
	}
	return &CallbackResult{
		RedirectURL:  s.frontendURL(params),
		RefreshToken: result.RefreshToken,
	}, nil
}

func (s *SessionService) frontendURL(params url.Values) string {
	return s.cfg.FrontendBaseURL + "/auth/line/complete?" + params.Encode()
}

// Refresh rotates a refresh token into a fresh access+refresh pair. Every
// failure is a 401; an unreadable cookie never degrades into an anonymous
// session.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	_, span := s.startSpan(ctx, "SessionService.Refresh")
	defer span.End()

	if refreshToken == "" {
		return nil, ErrUnauthorized("Refresh token missing")
	}

	claims, err := s.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		span.RecordError(err)
		return nil, ErrUnauthorized("Invalid refresh token")
	}

	access, err := s.codec.Issue(claims, token.KindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	rotated, err := s.codec.Issue(claims, token.KindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return &LoginResult{
		Token:        access,
		ShopID:       claims.ShopID,
		Role:         claims.Role,
		DisplayName:  claims.Name,
		PictureURL:   claims.Picture,
		RefreshToken: rotated,
	}, nil
}

// FirebaseBridge turns a chat access token into a primary-provider custom
// token so the web client can sign in to the primary SDK with the same
// identity.
func (s *SessionService) FirebaseBridge(ctx context.Context, accessToken string) (string, error) {
	ctx, span := s.startSpan(ctx, "SessionService.FirebaseBridge")
	defer span.End()

	claims, err := s.codec.Verify(accessToken, token.KindAccess)
	if err != nil || claims.Provider != domain.ProviderLine {
		if err != nil {
			span.RecordError(err)
		}
		return "", ErrUnauthorized("Invalid access token")
	}

	custom, err := s.minter.CustomToken(ctx, "line:"+claims.Subject, map[string]any{
		"provider": domain.ProviderLine,
		"shop_id":  claims.ShopID,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("mint custom token: %w", err)
	}
	return custom, nil
}

func (s *SessionService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}
