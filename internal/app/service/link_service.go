package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
	"go.uber.org/zap"
)

var (
	// ErrInvalidURL signals a destination outside the scheme allow-list.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrSlugLength signals a custom slug outside the 3-50 character window.
	ErrSlugLength = errors.New("slug must be between 3 and 50 characters")
	// ErrSlugCharset signals a custom slug with characters outside [A-Za-z0-9_-].
	ErrSlugCharset = errors.New("slug can only contain letters, numbers, dash, and underscore")
)

var (
	urlPattern  = regexp.MustCompile(`(?i)^(https?://|ftp://|magnet:\?).+`)
	slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

const (
	slugMinLen          = 3
	slugMaxLen          = 50
	generateRetries     = 2
	filterCapacity      = 1_000_000
	filterFalsePositive = 0.01
)

// CreateLinkInput captures a createLink request after boundary decoding.
type CreateLinkInput struct {
	URL      string
	Password string
	UserID   string
	Slug     string
	Expiry   string
}

// CreatedLink is the creation response. The destination is deliberately
// absent: the caller already holds the plaintext it submitted.
type CreatedLink struct {
	ShortURL    string
	Slug        string
	IsProtected bool
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// LinkService implements the link creation and resolution pipelines.
type LinkService interface {
	Create(ctx context.Context, input CreateLinkInput) (*CreatedLink, error)
	Resolve(ctx context.Context, slug string) (*model.Link, error)
	Unlock(ctx context.Context, slug, password string) (string, error)
	Delete(ctx context.Context, slug, userID string) error
	ListOwned(ctx context.Context, userID string) ([]model.UserLink, error)
	WarmFilter(ctx context.Context) error
}

// LinkServiceDeps bundles what the pipelines need.
type LinkServiceDeps struct {
	Logger       *zap.Logger
	Links        repository.LinkRepository
	Users        repository.UserRepository
	Generator    *SlugGenerator
	Codec        *Codec
	Safety       SafetyChecker
	Entitlements *EntitlementEvaluator
	Events       *EventPublisher
	BaseURL      string
}

type linkService struct {
	logger       *zap.Logger
	links        repository.LinkRepository
	users        repository.UserRepository
	generator    *SlugGenerator
	codec        *Codec
	safety       SafetyChecker
	entitlements *EntitlementEvaluator
	events       *EventPublisher
	baseURL      string

	// filter fast-paths "definitely unknown slug" on resolution. It is a
	// performance cache only; misses always fall through to the repository.
	filterMu sync.RWMutex
	filter   *bloom.BloomFilter
	warmed   bool
}

// NewLinkService wires the creation/resolution pipelines.
func NewLinkService(deps LinkServiceDeps) LinkService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		logger:       logger,
		links:        deps.Links,
		users:        deps.Users,
		generator:    deps.Generator,
		codec:        deps.Codec,
		safety:       deps.Safety,
		entitlements: deps.Entitlements,
		events:       deps.Events,
		baseURL:      strings.TrimRight(deps.BaseURL, "/"),
		filter:       bloom.NewWithEstimates(filterCapacity, filterFalsePositive),
	}
}

// Create runs the creation pipeline: validate → entitle → slug format →
// safety → encode → persist atomically → respond.
func (s *linkService) Create(ctx context.Context, input CreateLinkInput) (*CreatedLink, error) {
	if !urlPattern.MatchString(input.URL) {
		return nil, ErrInvalidURL
	}

	now := time.Now()

	var user *model.User
	if input.UserID != "" {
		var err error
		user, err = s.users.GetByID(ctx, input.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
	}

	ent, err := s.entitlements.Evaluate(user, input.Slug, input.Expiry, now)
	if err != nil {
		return nil, err
	}

	customSlug := ent.Slug != ""
	if customSlug {
		if len(ent.Slug) < slugMinLen || len(ent.Slug) > slugMaxLen {
			return nil, ErrSlugLength
		}
		if !slugPattern.MatchString(ent.Slug) {
			return nil, ErrSlugCharset
		}
	}

	if err := s.safety.Check(ctx, input.URL); err != nil {
		return nil, err
	}

	isProtected := input.Password != ""
	destination := input.URL
	if isProtected {
		destination, err = s.codec.Encode(input.URL, input.Password)
		if err != nil {
			return nil, fmt.Errorf("encode destination: %w", err)
		}
	}

	slug := ent.Slug
	if !customSlug {
		slug = s.generator.Generate()
	}

	// A collision on a generated slug is astronomically unlikely; retry a
	// couple of times rather than surfacing it. Custom slugs never fall back.
	for attempt := 0; ; attempt++ {
		link := &model.Link{
			Slug:        slug,
			Destination: destination,
			IsProtected: isProtected,
			ExpiresAt:   ent.ExpiresAt,
			CreatedAt:   now,
		}

		var index *model.UserLink
		if user != nil {
			link.OwnerID = &user.ID
			index = &model.UserLink{
				UserID:    user.ID,
				Slug:      slug,
				ExpiresAt: ent.ExpiresAt,
				CreatedAt: now,
			}
		}

		err = s.links.Create(ctx, link, index, ent.Quota)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrSlugTaken) && !customSlug && attempt < generateRetries {
			slug = s.generator.Generate()
			continue
		}
		if errors.Is(err, repository.ErrQuotaConflict) {
			// A concurrent create spent the last allowance between our
			// entitlement read and the commit.
			return nil, ErrQuotaExceeded
		}
		return nil, err
	}

	s.rememberSlug(slug)
	s.publish(model.EventLinkCreated, slug, input.UserID)
	s.logger.Info("link created",
		zap.String("slug", slug),
		zap.Bool("protected", isProtected),
		zap.Bool("custom", customSlug),
	)

	return &CreatedLink{
		ShortURL:    fmt.Sprintf("%s/%s", s.baseURL, slug),
		Slug:        slug,
		IsProtected: isProtected,
		CreatedAt:   now,
		ExpiresAt:   ent.ExpiresAt,
	}, nil
}

// Resolve looks a slug up, lazily evicting it when expired. Expired and
// genuinely absent both come back as repository errors the handler collapses
// into "not found".
func (s *linkService) Resolve(ctx context.Context, slug string) (*model.Link, error) {
	if s.definitelyUnknown(slug) {
		return nil, repository.ErrLinkNotFound
	}

	link, err := s.links.DeleteIfExpired(ctx, slug, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrLinkExpired) {
			s.publish(model.EventLinkExpired, slug, "")
			s.logger.Info("evicted expired link", zap.String("slug", slug))
		}
		return nil, err
	}
	return link, nil
}

// Unlock decrypts a protected destination with the supplied password. Wrong
// passwords surface as ErrDecodeFailed, distinct from not-found.
func (s *linkService) Unlock(ctx context.Context, slug, password string) (string, error) {
	link, err := s.Resolve(ctx, slug)
	if err != nil {
		return "", err
	}
	if !link.IsProtected {
		return link.Destination, nil
	}
	return s.codec.Decode(link.Destination, password)
}

// Delete removes a link on behalf of its owner.
func (s *linkService) Delete(ctx context.Context, slug, userID string) error {
	if err := s.links.DeleteOwned(ctx, slug, userID); err != nil {
		return err
	}
	s.publish(model.EventLinkDeleted, slug, userID)
	return nil
}

func (s *linkService) ListOwned(ctx context.Context, userID string) ([]model.UserLink, error) {
	return s.links.ListByOwner(ctx, userID)
}

// WarmFilter seeds the presence filter from the repository. Until it runs,
// the fast path stays disabled and every lookup hits the store.
func (s *linkService) WarmFilter(ctx context.Context) error {
	slugs, err := s.links.AllSlugs(ctx)
	if err != nil {
		return fmt.Errorf("warm slug filter: %w", err)
	}

	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	for _, slug := range slugs {
		s.filter.AddString(slug)
	}
	s.warmed = true
	s.logger.Info("slug filter warmed", zap.Int("slugs", len(slugs)))
	return nil
}

func (s *linkService) rememberSlug(slug string) {
	s.filterMu.Lock()
	s.filter.AddString(slug)
	s.filterMu.Unlock()
}

func (s *linkService) definitelyUnknown(slug string) bool {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return s.warmed && !s.filter.TestString(slug)
}

func (s *linkService) publish(eventType, slug, userID string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(eventType, slug, userID); err != nil {
		s.logger.Warn("failed to publish lifecycle event",
			zap.String("type", eventType),
			zap.String("slug", slug),
			zap.Error(err))
	}
}
