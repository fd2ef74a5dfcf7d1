package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/api/middleware"
	"github.com/sergeiliashko/zero2prod/internal/idempotency"
	"github.com/sergeiliashko/zero2prod/internal/model"
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/internal/service"
)

const testCookieName = "newsletter_session"

type nopSender struct {
	mu   sync.Mutex
	sent int
}

func (s *nopSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

type testApp struct {
	router   *gin.Engine
	db       *gorm.DB
	auth     *service.AuthService
	subs     *service.SubscriptionService
	sessions *service.SessionStore
	userRepo repository.UserRepository
	userID   string
}

// newTestApp 完整服务栈：sqlite 内存库 + miniredis 会话，
// 只挂与测试相关的路由
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&model.User{},
		&model.Subscription{},
		&model.SubscriptionToken{},
		&model.NewsletterIssue{},
		&model.DeliveryQueueEntry{},
		&model.IdempotencyRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)

	sender := &nopSender{}
	subscriptionSvc := service.NewSubscriptionService(subRepo, sender, "https://newsletter.example.com")
	coordinator := service.NewIdempotencyCoordinator(db, idemRepo, time.Second)
	publishSvc := service.NewPublishService(coordinator, issueRepo)
	authSvc := service.NewAuthService(userRepo, "test-secret", time.Hour)
	sessions := service.NewSessionStore(rdb, time.Hour)

	hash, err := service.HashPassword("everythinghastostartsomewhere")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := &model.User{ID: uuid.New().String(), Username: "admin", PasswordHash: hash}
	if err := userRepo.Create(context.Background(), admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	h := New(subscriptionSvc, publishSvc, authSvc, sessions, userRepo, testCookieName, false)
	r := gin.New()
	r.POST("/subscriptions", h.Subscribe)
	r.GET("/subscriptions/confirm", h.ConfirmSubscription)
	r.POST("/login", h.Login)
	adminGroup := r.Group("/admin", middleware.RequireUser(sessions, authSvc, testCookieName))
	adminGroup.POST("/newsletters", h.PublishNewsletter)
	adminGroup.POST("/logout", h.Logout)

	return &testApp{
		router:   r,
		db:       db,
		auth:     authSvc,
		subs:     subscriptionSvc,
		sessions: sessions,
		userRepo: userRepo,
		userID:   admin.ID,
	}
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := a.postForm(t, "/login", url.Values{
		"username": {"admin"},
		"password": {"everythinghastostartsomewhere"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login set no session cookie")
	return nil
}

func (a *testApp) seedConfirmedSubscriber(t *testing.T, email string) {
	t.Helper()
	repo := repository.NewSubscriptionRepository(a.db)
	token := "tok-" + email
	if _, err := repo.Create(context.Background(), email, "s", token); err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}
	if _, err := repo.ConfirmByToken(context.Background(), token); err != nil {
		t.Fatalf("confirm subscriber: %v", err)
	}
}

func publishForm(key string) url.Values {
	return url.Values{
		"title":           {"Issue #1"},
		"text_content":    {"hello"},
		"html_content":    {"<p>hello</p>"},
		"idempotency_key": {key},
	}
}

func TestPublishNewsletterIdempotentReplay(t *testing.T) {
	app := newTestApp(t)
	app.seedConfirmedSubscriber(t, "s1@example.com")
	cookie := app.login(t)
	withCookie := func(req *http.Request) { req.AddCookie(cookie) }

	first := app.postForm(t, "/admin/newsletters", publishForm("pub-1"), withCookie)
	if first.Code != http.StatusOK {
		t.Fatalf("publish returned %d: %s", first.Code, first.Body.String())
	}
	second := app.postForm(t, "/admin/newsletters", publishForm("pub-1"), withCookie)
	if second.Code != http.StatusOK {
		t.Fatalf("republish returned %d: %s", second.Code, second.Body.String())
	}

	// 重试必须逐字节等于首次响应
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body differs:\n%s\nvs\n%s", second.Body.String(), first.Body.String())
	}
	if got, want := second.Header().Get("Content-Type"), first.Header().Get("Content-Type"); got != want {
		t.Fatalf("replay content-type differs: %q vs %q", got, want)
	}

	var issues int64
	if err := app.db.Model(&model.NewsletterIssue{}).Count(&issues).Error; err != nil {
		t.Fatalf("count issues: %v", err)
	}
	if issues != 1 {
		t.Fatalf("expected 1 issue after replay, got %d", issues)
	}
}

func TestPublishNewsletterEmptyKeyRejected(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	w := app.postForm(t, "/admin/newsletters", publishForm(""), func(req *http.Request) { req.AddCookie(cookie) })
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var ledger int64
	if err := app.db.Model(&model.IdempotencyRecord{}).Count(&ledger).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if ledger != 0 {
		t.Fatalf("rejected request left %d ledger rows", ledger)
	}
}

func TestPublishNewsletterOversizedKeyRejected(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	w := app.postForm(t, "/admin/newsletters", publishForm(strings.Repeat("k", 257)), func(req *http.Request) { req.AddCookie(cookie) })
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPublishNewsletterRequiresAuth(t *testing.T) {
	app := newTestApp(t)
	w := app.postForm(t, "/admin/newsletters", publishForm("pub-1"), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPublishNewsletterBearerToken(t *testing.T) {
	app := newTestApp(t)
	app.seedConfirmedSubscriber(t, "s1@example.com")
	token, err := app.auth.IssueToken(app.userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	w := app.postForm(t, "/admin/newsletters", publishForm("pub-1"), func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("publish with bearer token returned %d: %s", w.Code, w.Body.String())
	}
}

// stuckClaimRepo 模拟认领一直等在竞争事务的行锁上
type stuckClaimRepo struct {
	repository.IdempotencyRepository
}

func (r *stuckClaimRepo) InsertClaim(ctx context.Context, tx *gorm.DB, userID string, key idempotency.Key) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestPublishNewsletterClaimTimeout(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)

	coordinator := service.NewIdempotencyCoordinator(app.db, &stuckClaimRepo{}, 50*time.Millisecond)
	publishSvc := service.NewPublishService(coordinator, repository.NewIssueRepository(app.db))
	h := New(app.subs, publishSvc, app.auth, app.sessions, app.userRepo, testCookieName, false)
	r := gin.New()
	r.Group("/admin", middleware.RequireUser(app.sessions, app.auth, testCookieName)).
		POST("/newsletters", h.PublishNewsletter)

	req := httptest.NewRequest(http.MethodPost, "/admin/newsletters",
		strings.NewReader(publishForm("pub-1").Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on claim timeout, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubscribeAndConfirmFlow(t *testing.T) {
	app := newTestApp(t)

	w := app.postForm(t, "/subscriptions", url.Values{
		"name":  {"Ursula"},
		"email": {"ursula@example.com"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("subscribe returned %d: %s", w.Code, w.Body.String())
	}

	var token model.SubscriptionToken
	if err := app.db.First(&token).Error; err != nil {
		t.Fatalf("load token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/subscriptions/confirm?subscription_token="+token.SubscriptionToken, nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm returned %d: %s", rec.Code, rec.Body.String())
	}

	var sub model.Subscription
	if err := app.db.Where("email = ?", "ursula@example.com").First(&sub).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != model.SubscriptionStatusConfirmed {
		t.Fatalf("expected confirmed, got %q", sub.Status)
	}
}

func TestConfirmMissingToken(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/subscriptions/confirm", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestConfirmUnknownTokenUnauthorized(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/subscriptions/confirm?subscription_token=aaaaaaaaaaaaaaaaaaaaaaaaa", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t)
	withCookie := func(req *http.Request) { req.AddCookie(cookie) }

	w := app.postForm(t, "/admin/logout", url.Values{}, withCookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", w.Code, w.Body.String())
	}
	w = app.postForm(t, "/admin/newsletters", publishForm("pub-1"), withCookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}
