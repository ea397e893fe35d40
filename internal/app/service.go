package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"annotate/api/internal/annotation"
	"annotate/api/internal/auth"
	"annotate/api/internal/authpw"
	"annotate/api/internal/config"
	"annotate/api/internal/export"
	"annotate/api/internal/logging"
	"annotate/api/internal/metrics"
	"annotate/api/internal/rbac"
	"annotate/api/internal/store"
	"annotate/api/internal/util"
)

// GroupStore looks up groups and their members.
type GroupStore interface {
	GetGroup(ctx context.Context, name string) (store.Group, error)
	IsGroupMember(ctx context.Context, group string, user annotation.UserRef) (bool, error)
}

// RevocationStore remembers logged out access tokens. Both the Redis and the
// Postgres store implement it.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// ReportStore keeps uploaded export reports.
type ReportStore interface {
	Upload(ctx context.Context, key string, result *export.Result) (string, time.Time, error)
}

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Engine      *annotation.Engine
	Groups      GroupStore
	Clients     authpw.ClientStore
	Revocations RevocationStore
	// Reports is nil when report storage is not configured.
	Reports ReportStore
	// Backend names the search backend for metrics.
	Backend func() string
	// Checks are pinged by /api/ready, keyed by name.
	Checks map[string]Pinger
}

type Service struct {
	cfg         config.Config
	engine      *annotation.Engine
	groups      GroupStore
	clients     *authpw.Service
	revocations RevocationStore
	exporter    *export.Service
	reports     ReportStore
	backend     func() string
	checks      map[string]Pinger
	logger      zerolog.Logger
	now         func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	backend := deps.Backend
	if backend == nil {
		backend = func() string { return "postgres" }
	}
	pageSize := cfg.Search.MaxLimit
	if pageSize <= 0 {
		pageSize = annotation.DefaultMaxLimit
	}
	return &Service{
		cfg:         cfg,
		engine:      deps.Engine,
		groups:      deps.Groups,
		clients:     authpw.NewService(deps.Clients),
		revocations: deps.Revocations,
		exporter:    export.NewService(deps.Engine, pageSize),
		reports:     deps.Reports,
		backend:     backend,
		checks:      deps.Checks,
		logger:      logging.Component("app"),
		now:         time.Now,
	}
}

// TokenGrant is an access token issued to a client on behalf of a user.
type TokenGrant struct {
	AccessToken string
	ExpiresAt   time.Time
	User        annotation.UserRef
}

// IssueToken authenticates the client and issues an access token for login
// under the client's authority.
func (s *Service) IssueToken(ctx context.Context, clientID, clientSecret, login string) (TokenGrant, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return TokenGrant{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "login is required", nil)
	}
	client, err := s.clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		s.logger.Warn().Str("client_id", clientID).Msg("client authentication failed")
		return TokenGrant{}, err
	}

	expiresAt := s.now().Add(s.cfg.Auth.AccessTTL)
	claims := auth.Claims{
		Sub:       login,
		Authority: client.Authority,
		Client:    client.ID,
		JTI:       util.NewPrefixedID(""),
		Exp:       expiresAt.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.Auth.JWTSecret), claims)
	if err != nil {
		return TokenGrant{}, fmt.Errorf("issue token: %w", err)
	}
	return TokenGrant{AccessToken: token, ExpiresAt: claims.ExpiresAt(), User: claims.User()}, nil
}

// Authenticate validates an access token and checks it has not been
// revoked.
func (s *Service) Authenticate(ctx context.Context, token string) (auth.Claims, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.Auth.JWTSecret), token)
	if err != nil {
		return auth.Claims{}, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return auth.Claims{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return auth.Claims{}, auth.ErrInvalidToken
		}
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, claims auth.Claims) error {
	if s.revocations == nil {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, claims.JTI, claims.ExpiresAt()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// authorizeGroup applies the group's read policy before any annotation of
// the group is touched.
func (s *Service) authorizeGroup(ctx context.Context, group string, user annotation.UserRef) error {
	if group == store.WorldGroup {
		return nil
	}
	g, err := s.groups.GetGroup(ctx, group)
	if errors.Is(err, sql.ErrNoRows) {
		return errGroupNotFound
	}
	if err != nil {
		return err
	}

	policy := rbac.Normalize(g.ReadPolicy)
	isMember := false
	if policy != rbac.PolicyOpen {
		isMember, err = s.groups.IsGroupMember(ctx, g.Name, user)
		if err != nil {
			return err
		}
	}
	if !rbac.CanRead(policy, isMember) {
		return errGroupForbidden
	}
	return nil
}

func (s *Service) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Search.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Search.Timeout)
	}
	return context.WithCancel(ctx)
}

// Search runs one annotation search for user.
func (s *Service) Search(ctx context.Context, opts annotation.SearchOptions, user annotation.UserRef) (annotation.Response, error) {
	if err := s.engine.Validate(opts); err != nil {
		return annotation.Response{}, err
	}
	if err := s.authorizeGroup(ctx, opts.Group, user); err != nil {
		return annotation.Response{}, err
	}

	ctx, cancel := s.searchContext(ctx)
	defer cancel()

	backend := s.backend()
	started := time.Now()
	resp, err := s.engine.Query(ctx, opts, user)
	metrics.ObserveSearch(backend, started, resp.Metadata.Batches, resp.Metadata.RowsExamined, resp.Metadata.Inconsistent, err)
	if err != nil {
		s.logger.Error().Err(err).
			Str("backend", backend).
			Str("uri", opts.DocumentURI).
			Str("group", opts.Group).
			Msg("search failed")
		return annotation.Response{}, err
	}

	s.logger.Debug().
		Str("backend", backend).
		Int("batches", resp.Metadata.Batches).
		Int("rows_examined", resp.Metadata.RowsExamined).
		Int("total", resp.Total).
		Msg("search served")
	return resp, nil
}

// Replies resolves the replies of the given top-level ids. Ids of replies,
// deleted annotations or notes the user cannot see yield nothing.
func (s *Service) Replies(ctx context.Context, uri, group string, ids []string, user annotation.UserRef) ([]annotation.Annotation, error) {
	opts := annotation.SearchOptions{DocumentURI: uri, Group: group}
	if err := s.engine.Validate(opts); err != nil {
		return nil, err
	}
	if len(ids) > s.engineMaxLimit() {
		return nil, fmt.Errorf("%w: ids: at most %d ids per request", annotation.ErrInvalidOptions, s.engineMaxLimit())
	}
	if err := s.authorizeGroup(ctx, group, user); err != nil {
		return nil, err
	}

	roots := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			roots = append(roots, id)
		}
	}

	ctx, cancel := s.searchContext(ctx)
	defer cancel()
	return s.engine.RepliesForIDs(ctx, roots, opts, user)
}

func (s *Service) engineMaxLimit() int {
	if s.cfg.Search.MaxLimit > 0 {
		return s.cfg.Search.MaxLimit
	}
	return annotation.DefaultMaxLimit
}

// Export renders every visible annotation of a document.
func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if err := s.engine.Validate(annotation.SearchOptions{DocumentURI: req.DocumentURI, Group: req.Group}); err != nil {
		return nil, err
	}
	if err := s.authorizeGroup(ctx, req.Group, req.Requester); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, req)
}

// ReportUpload is where an uploaded report can be downloaded.
type ReportUpload struct {
	Key       string
	URL       string
	ExpiresAt time.Time
	Filename  string
}

// UploadReport renders a report and stores it for later download.
func (s *Service) UploadReport(ctx context.Context, req export.Request) (ReportUpload, error) {
	if s.reports == nil {
		return ReportUpload{}, errReportsOff
	}
	result, err := s.Export(ctx, req)
	if err != nil {
		return ReportUpload{}, err
	}
	key := export.ObjectKey(req, util.NewID(), result)
	url, expiresAt, err := s.reports.Upload(ctx, key, result)
	if err != nil {
		return ReportUpload{}, err
	}
	s.logger.Info().Str("key", key).Int("bytes", len(result.Data)).Msg("report uploaded")
	return ReportUpload{Key: key, URL: url, ExpiresAt: expiresAt, Filename: result.Filename}, nil
}

// Ready pings every dependency and reports the failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		results[name] = check.Ping(ctx)
	}
	return results
}

func (s *Service) DefaultLimit() int {
	if s.cfg.Search.DefaultLimit > 0 {
		return s.cfg.Search.DefaultLimit
	}
	return 20
}
