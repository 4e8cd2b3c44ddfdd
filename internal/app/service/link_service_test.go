package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
)

type mockLinkRepository struct {
	existsFn  func(ctx context.Context, slug string) (bool, error)
	createFn  func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error
	getFn     func(ctx context.Context, slug string) (*model.Link, error)
	delExpFn  func(ctx context.Context, slug string, now time.Time) (*model.Link, error)
	delOwnFn  func(ctx context.Context, slug, ownerID string) error
	listFn    func(ctx context.Context, userID string) ([]model.UserLink, error)
	allFn     func(ctx context.Context) ([]string, error)
}

func (m *mockLinkRepository) Exists(ctx context.Context, slug string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, slug)
	}
	return false, nil
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
	if m.createFn != nil {
		return m.createFn(ctx, link, index, quota)
	}
	return nil
}

func (m *mockLinkRepository) GetBySlug(ctx context.Context, slug string) (*model.Link, error) {
	if m.getFn != nil {
		return m.getFn(ctx, slug)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) DeleteIfExpired(ctx context.Context, slug string, now time.Time) (*model.Link, error) {
	if m.delExpFn != nil {
		return m.delExpFn(ctx, slug, now)
	}
	return nil, repository.ErrLinkNotFound
}

func (m *mockLinkRepository) DeleteOwned(ctx context.Context, slug, ownerID string) error {
	if m.delOwnFn != nil {
		return m.delOwnFn(ctx, slug, ownerID)
	}
	return nil
}

func (m *mockLinkRepository) ListByOwner(ctx context.Context, userID string) ([]model.UserLink, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLinkRepository) AllSlugs(ctx context.Context) ([]string, error) {
	if m.allFn != nil {
		return m.allFn(ctx)
	}
	return nil, nil
}

type mockUserRepository struct {
	getFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	return true, nil
}

func (m *mockUserRepository) SetSubscription(ctx context.Context, userID string, sub model.Subscription, isSubscribed bool) error {
	return nil
}

func (m *mockUserRepository) Deactivate(ctx context.Context, userID string, record *model.PaymentRecord) error {
	return nil
}

type mockSafetyChecker struct {
	checkFn func(ctx context.Context, url string) error
}

func (m *mockSafetyChecker) Check(ctx context.Context, url string) error {
	if m.checkFn != nil {
		return m.checkFn(ctx, url)
	}
	return nil
}

func newTestLinkService(links repository.LinkRepository, users repository.UserRepository, safety SafetyChecker) LinkService {
	return NewLinkService(LinkServiceDeps{
		Links:        links,
		Users:        users,
		Generator:    NewSlugGenerator(),
		Codec:        NewCodec("test-secret"),
		Safety:       safety,
		Entitlements: NewEntitlementEvaluator(5, 6),
		BaseURL:      "https://lin.kl/",
	})
}

func TestLinkService_Create_Anonymous(t *testing.T) {
	var stored *model.Link
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			if index != nil {
				t.Fatal("anonymous create must not write an ownership index")
			}
			if quota != nil {
				t.Fatal("anonymous create must not touch quota")
			}
			stored = link
			return nil
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})
	created, err := svc.Create(context.Background(), CreateLinkInput{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if stored == nil {
		t.Fatal("expected a persisted link")
	}
	if stored.Destination != "https://example.com" {
		t.Fatalf("unprotected destination must be stored verbatim, got %q", stored.Destination)
	}
	if stored.ExpiresAt == nil {
		t.Fatal("anonymous links must carry the default expiry")
	}
	if len(created.Slug) != 12 {
		t.Fatalf("expected a generated 12-character slug, got %q", created.Slug)
	}
	if created.ShortURL != "https://lin.kl/"+created.Slug {
		t.Fatalf("unexpected short URL %q", created.ShortURL)
	}
}

func TestLinkService_Create_InvalidURL(t *testing.T) {
	svc := newTestLinkService(&mockLinkRepository{}, &mockUserRepository{}, &mockSafetyChecker{})

	for _, url := range []string{"", "example.com", "javascript:alert(1)", "file:///etc/passwd"} {
		_, err := svc.Create(context.Background(), CreateLinkInput{URL: url})
		if !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("url %q: expected ErrInvalidURL, got %v", url, err)
		}
	}
}

func TestLinkService_Create_SchemeAllowList(t *testing.T) {
	svc := newTestLinkService(&mockLinkRepository{}, &mockUserRepository{}, &mockSafetyChecker{})

	for _, url := range []string{
		"https://example.com",
		"http://example.com",
		"HTTPS://EXAMPLE.COM",
		"ftp://files.example.com/a.iso",
		"magnet:?xt=urn:btih:deadbeef",
	} {
		if _, err := svc.Create(context.Background(), CreateLinkInput{URL: url}); err != nil {
			t.Fatalf("url %q: expected success, got %v", url, err)
		}
	}
}

func TestLinkService_Create_ProtectedDestinationEncrypted(t *testing.T) {
	var stored *model.Link
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			stored = link
			return nil
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})
	created, err := svc.Create(context.Background(), CreateLinkInput{
		URL:      "https://example.com/secret",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !created.IsProtected {
		t.Fatal("expected a protected link")
	}
	if stored.Destination == "https://example.com/secret" {
		t.Fatal("protected destination must not be stored in plaintext")
	}
}

func TestLinkService_Create_MaliciousRejectedBeforePersist(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			t.Fatal("blocked link must never reach the repository")
			return nil
		},
	}
	safety := &mockSafetyChecker{
		checkFn: func(ctx context.Context, url string) error { return ErrMaliciousLink },
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, safety)
	_, err := svc.Create(context.Background(), CreateLinkInput{URL: "https://evil.example.com"})
	if !errors.Is(err, ErrMaliciousLink) {
		t.Fatalf("expected ErrMaliciousLink, got %v", err)
	}
}

func TestLinkService_Create_CustomSlugCollision(t *testing.T) {
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			return repository.ErrSlugTaken
		},
	}
	users := &mockUserRepository{
		getFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, IsSubscribed: true}, nil
		},
	}

	svc := newTestLinkService(repo, users, &mockSafetyChecker{})
	_, err := svc.Create(context.Background(), CreateLinkInput{
		URL:    "https://example.com",
		UserID: "user-1",
		Slug:   "taken",
	})
	if !errors.Is(err, repository.ErrSlugTaken) {
		t.Fatalf("custom slug collision must surface, got %v", err)
	}
}

func TestLinkService_Create_GeneratedSlugRetries(t *testing.T) {
	attempts := 0
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			attempts++
			if attempts == 1 {
				return repository.ErrSlugTaken
			}
			return nil
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})
	if _, err := svc.Create(context.Background(), CreateLinkInput{URL: "https://example.com"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry after the collision, got %d attempts", attempts)
	}
}

func TestLinkService_Create_CustomSlugValidation(t *testing.T) {
	users := &mockUserRepository{
		getFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, IsSubscribed: true}, nil
		},
	}
	svc := newTestLinkService(&mockLinkRepository{}, users, &mockSafetyChecker{})

	_, err := svc.Create(context.Background(), CreateLinkInput{
		URL: "https://example.com", UserID: "user-1", Slug: "ab",
	})
	if !errors.Is(err, ErrSlugLength) {
		t.Fatalf("expected ErrSlugLength for 2-char slug, got %v", err)
	}

	_, err = svc.Create(context.Background(), CreateLinkInput{
		URL: "https://example.com", UserID: "user-1", Slug: "bad slug!",
	})
	if !errors.Is(err, ErrSlugCharset) {
		t.Fatalf("expected ErrSlugCharset, got %v", err)
	}
}

func TestLinkService_Resolve_ExpiredReadsAsMissing(t *testing.T) {
	repo := &mockLinkRepository{
		delExpFn: func(ctx context.Context, slug string, now time.Time) (*model.Link, error) {
			return nil, repository.ErrLinkExpired
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})
	_, err := svc.Resolve(context.Background(), "stale")
	if !errors.Is(err, repository.ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
}

func TestLinkService_Resolve_WarmedFilterShortCircuits(t *testing.T) {
	lookups := 0
	repo := &mockLinkRepository{
		allFn: func(ctx context.Context) ([]string, error) {
			return []string{"known"}, nil
		},
		delExpFn: func(ctx context.Context, slug string, now time.Time) (*model.Link, error) {
			lookups++
			if slug == "known" {
				return &model.Link{Slug: slug, Destination: "https://example.com"}, nil
			}
			return nil, repository.ErrLinkNotFound
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})
	if err := svc.WarmFilter(context.Background()); err != nil {
		t.Fatalf("WarmFilter error: %v", err)
	}

	if _, err := svc.Resolve(context.Background(), "definitely-absent"); !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if lookups != 0 {
		t.Fatalf("filter miss must not hit the repository, got %d lookups", lookups)
	}

	if _, err := svc.Resolve(context.Background(), "known"); err != nil {
		t.Fatalf("Resolve known slug: %v", err)
	}
	if lookups != 1 {
		t.Fatalf("expected exactly one repository lookup, got %d", lookups)
	}
}

func TestLinkService_Unlock(t *testing.T) {
	codec := NewCodec("test-secret")
	encoded, err := codec.Encode("https://example.com/secret", "hunter2")
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	repo := &mockLinkRepository{
		delExpFn: func(ctx context.Context, slug string, now time.Time) (*model.Link, error) {
			return &model.Link{Slug: slug, Destination: encoded, IsProtected: true}, nil
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})

	url, err := svc.Unlock(context.Background(), "abc", "hunter2")
	if err != nil {
		t.Fatalf("Unlock error: %v", err)
	}
	if url != "https://example.com/secret" {
		t.Fatalf("unexpected destination %q", url)
	}

	if _, err := svc.Unlock(context.Background(), "abc", "wrong"); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed, got %v", err)
	}
}

func TestLinkService_Unlock_UnprotectedPassesThrough(t *testing.T) {
	repo := &mockLinkRepository{
		delExpFn: func(ctx context.Context, slug string, now time.Time) (*model.Link, error) {
			return &model.Link{Slug: slug, Destination: "https://example.com"}, nil
		},
	}

	svc := newTestLinkService(repo, &mockUserRepository{}, &mockSafetyChecker{})
	url, err := svc.Unlock(context.Background(), "abc", "ignored")
	if err != nil {
		t.Fatalf("Unlock error: %v", err)
	}
	if url != "https://example.com" {
		t.Fatalf("unexpected destination %q", url)
	}
}

func TestLinkService_Create_QuotaRaceSurfacesAsQuotaExceeded(t *testing.T) {
	users := &mockUserRepository{
		getFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{
				ID:               id,
				CustomLinksCount: 4,
				CustomLinksReset: time.Now().AddDate(0, 1, 0),
			}, nil
		},
	}
	// A sibling request committed the last allowance after our entitlement
	// read: the guarded counter update misses.
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			return repository.ErrQuotaConflict
		},
	}

	svc := newTestLinkService(repo, users, &mockSafetyChecker{})
	_, err := svc.Create(context.Background(), CreateLinkInput{
		URL:    "https://example.com",
		UserID: "user-1",
		Slug:   "last-one",
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestLinkService_Create_QuotaRidesInTransaction(t *testing.T) {
	users := &mockUserRepository{
		getFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{
				ID:               id,
				CustomLinksCount: 1,
				CustomLinksReset: time.Now().AddDate(0, 1, 0),
			}, nil
		},
	}
	var gotQuota *repository.QuotaIncrement
	repo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link, index *model.UserLink, quota *repository.QuotaIncrement) error {
			gotQuota = quota
			if index == nil {
				t.Fatal("owned create must write the ownership index")
			}
			return nil
		},
	}

	svc := newTestLinkService(repo, users, &mockSafetyChecker{})
	_, err := svc.Create(context.Background(), CreateLinkInput{
		URL:    "https://example.com",
		UserID: "user-1",
		Slug:   "my-page",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if gotQuota == nil || gotQuota.Count != 2 {
		t.Fatalf("expected quota increment to 2, got %+v", gotQuota)
	}
}
