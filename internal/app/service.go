package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trove/api/internal/auth"
	"trove/api/internal/authpw"
	"trove/api/internal/config"
	"trove/api/internal/events"
	"trove/api/internal/flow"
	"trove/api/internal/search"
	"trove/api/internal/store"
	"trove/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// RefreshStore keeps refresh sessions by token hash.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// DataStore is implemented by store.PostgresStore and store.MemoryStore.
type DataStore interface {
	RefreshStore
	Ping(ctx context.Context) error

	EnsureUserByName(ctx context.Context, name string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertContent(ctx context.Context, ownerID string, content flow.Content) error
	GetContent(ctx context.Context, contentID string) (flow.Content, error)
	ListContents(ctx context.Context, ownerID, query string, limit int) ([]flow.Content, error)
	UsageCounts(ctx context.Context, contentIDs []string) (map[string]int, error)

	ListFlows(ctx context.Context, ownerID string) ([]store.FlowSummary, error)
	GetFlow(ctx context.Context, flowID string) (flow.Flow, error)
	CreateFlow(ctx context.Context, f flow.Flow) error
	UpdateFlow(ctx context.Context, flowID string, patch store.FlowPatch) error
	DeleteFlow(ctx context.Context, flowID string) error
	FlowIDForStage(ctx context.Context, stageID string) (string, error)
	FlowIDForNode(ctx context.Context, nodeID string) (string, error)

	AddStage(ctx context.Context, flowID string, stage flow.Stage) (flow.Stage, error)
	RenameStage(ctx context.Context, stageID, name string) (flow.Stage, error)
	DeleteStage(ctx context.Context, stageID string) error
	ReorderStages(ctx context.Context, flowID string, orderedIDs []string) error

	CreateNode(ctx context.Context, stageID string, node flow.Node, beforeNodeID string) (flow.Node, error)
	ReorderNodes(ctx context.Context, stageID string, orderedIDs []string) error
	MoveNode(ctx context.Context, nodeID, toStageID string, orderedIDs []string) error
	UpdateNode(ctx context.Context, nodeID, description string) (flow.Node, error)
	RemoveNode(ctx context.Context, nodeID string) error
}

// Deps are the optional collaborators of a Service. Zero values disable the
// corresponding feature.
type Deps struct {
	Sessions RefreshStore
	Search   *search.Service
	Events   events.Publisher
	Logger   zerolog.Logger
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions RefreshStore
	accounts *authpw.Service
	search   *search.Service
	events   events.Publisher
	logger   zerolog.Logger
}

func New(cfg config.Config, dataStore DataStore, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: deps.Sessions,
		accounts: authpw.NewService(dataStore),
		search:   deps.Search,
		events:   deps.Events,
		logger:   deps.Logger,
	}
	if s.sessions == nil {
		s.sessions = dataStore
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Readiness checks the store and reports the optional backends. Only the
// store decides readiness; sessions and search degrade on their own.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{}
	ready := true
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}

	if p, ok := s.sessions.(pinger); ok && s.sessions != RefreshStore(s.store) {
		if err := p.Ping(ctx); err != nil {
			checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["sessions"] = map[string]any{"status": "ok"}
		}
	}
	if s.search != nil {
		checks["search"] = map[string]any{"status": s.search.Status()}
	}
	return ready, checks
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}
	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	switch {
	case errors.Is(err, authpw.ErrEmailTaken):
		return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidInput):
		return Session{}, validationError(err.Error())
	case err != nil:
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, email, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair is
// issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	claims := auth.NewClaims(user.ID, user.DisplayName, user.Role, jti, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn().Err(err).Str("user_id", session.UserID).Msg("revoke access token")
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn().Err(err).Str("user_id", session.UserID).Msg("revoke refresh token")
		}
	}
	return nil
}
