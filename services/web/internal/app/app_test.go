package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"waifugen/internal/servicetoken"
	"waifugen/internal/usertoken"
	"waifugen/pkg/ai"
	"waifugen/pkg/domain"
	"waifugen/pkg/oauth"
	"waifugen/pkg/payment"
	"waifugen/pkg/queue"
	"waifugen/pkg/storage"
	"waifugen/pkg/store"
)

const (
	testSessionSecret  = "0123456789abcdef0123456789abcdef"
	testVerifySecret   = "fedcba9876543210fedcba9876543210"
	testCallbackSecret = "callback-secret-callback-secret-!"
	testBaseURL        = "http://waifugen.test"
)

type testEnv struct {
	app      *App
	store    *store.GormStore
	objects  *storage.FileStore
	images   *fakeImages
	queue    *fakeQueue
	mailer   *fakeMailer
	payments *fakePayments
	oauth    *fakeOAuth
	slides   *fakeSlideshow
	signer   *servicetoken.Signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewGormStore(store.DriverSQLite, filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	sessions, err := store.NewJWTSessionStore(testSessionSecret, "test", nil, time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	verify, err := usertoken.NewIssuer(usertoken.Config{Secret: testVerifySecret})
	if err != nil {
		t.Fatalf("verify issuer: %v", err)
	}
	verifier, err := servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
		Secret:         testCallbackSecret,
		Audience:       "waifugen-web",
		AllowedIssuers: []string{"waifugen-worker"},
	})
	if err != nil {
		t.Fatalf("callback verifier: %v", err)
	}
	signer, err := servicetoken.NewSignerWithOptions(servicetoken.SignerOptions{
		Secret:   testCallbackSecret,
		Issuer:   "waifugen-worker",
		Audience: "waifugen-web",
	})
	if err != nil {
		t.Fatalf("callback signer: %v", err)
	}
	objects, err := storage.NewFileStore(t.TempDir(), testBaseURL)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	env := &testEnv{
		store:    st,
		objects:  objects,
		images:   &fakeImages{},
		queue:    &fakeQueue{},
		mailer:   &fakeMailer{},
		payments: &fakePayments{purchases: map[string]payment.Purchase{}},
		oauth:    &fakeOAuth{},
		slides:   &fakeSlideshow{},
		signer:   signer,
	}
	a, err := New(Config{
		Store:            st,
		Sessions:         sessions,
		VerifyTokens:     verify,
		CallbackVerifier: verifier,
		Mailer:           env.mailer,
		Images:           env.images,
		Objects:          objects,
		Queue:            env.queue,
		Payments:         env.payments,
		OAuth:            env.oauth,
		Slideshow:        env.slides,
		BaseURL:          testBaseURL + "/",
		SignupCredits:    5,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app = a
	return env
}

func (e *testEnv) seedUser(t *testing.T, id string, credits int, verified bool) domain.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), domain.User{
		ID:                 id,
		Username:           "user_" + id,
		Email:              id + "@example.com",
		PasswordHash:       "x",
		RemainingCreations: credits,
		Verified:           verified,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func (e *testEnv) generate(t *testing.T, user domain.User) domain.Creation {
	t.Helper()
	res, err := e.app.Generate(context.Background(), user, GenerateInput{Attributes: sampleAttributes()})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return res.Creation
}

func sampleAttributes() domain.Attributes {
	return domain.Attributes{
		Age:         "young adult",
		BodyShape:   "slim",
		BreastSize:  "medium",
		Expression:  "smiling",
		EyeColor:    "blue eyes",
		HairColor:   "silver hair",
		HairLength:  "long hair",
		HairType:    "straight",
		FullClothes: "kimono",
	}
}

// fakeImages returns a distinct small png on every call unless fixed is set.
type fakeImages struct {
	mu    sync.Mutex
	calls int
	fixed bool
	err   error
}

func (f *fakeImages) GenerateImage(_ context.Context, req ai.ImageRequest) (ai.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return ai.ImageResult{}, f.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	shade := uint8(f.calls)
	if f.fixed {
		shade = 1
	}
	img.Set(0, 0, color.RGBA{R: shade, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ai.ImageResult{}, err
	}
	return ai.ImageResult{Image: buf.Bytes(), Base64: "aW1n", Seed: int64(f.calls), Cost: 0.01}, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	taskIDs []string
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, taskID string) (queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return queue.Job{}, q.err
	}
	q.taskIDs = append(q.taskIDs, taskID)
	return queue.Job{ID: "job-" + taskID, TaskID: taskID, Status: queue.StatusQueued}, nil
}

func (q *fakeQueue) Start(context.Context, int, queue.Handler) error { return nil }
func (q *fakeQueue) Close() error                                  { return nil }

type sentMail struct {
	to, username, link string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerification(_ context.Context, to, username, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, username: username, link: link})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

type fakePayments struct {
	purchases map[string]payment.Purchase
	event     payment.Event
	parseErr  error
	checkouts []payment.CheckoutRequest
}

func (p *fakePayments) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	p.checkouts = append(p.checkouts, req)
	return payment.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"}, nil
}

func (p *fakePayments) ParseWebhook(_ []byte, _ string) (payment.Event, error) {
	if p.parseErr != nil {
		return payment.Event{}, p.parseErr
	}
	return p.event, nil
}

func (p *fakePayments) GetPurchase(_ context.Context, sessionID string) (payment.Purchase, error) {
	purchase, ok := p.purchases[sessionID]
	if !ok {
		return payment.Purchase{}, errors.New("no such session")
	}
	return purchase, nil
}

type fakeOAuth struct {
	profile oauth.Profile
	err     error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.test/auth?state=" + state
}

func (f *fakeOAuth) Exchange(context.Context, string) (oauth.Profile, error) {
	return f.profile, f.err
}

type fakeSlideshow struct {
	got ai.SlideshowRequest
}

func (f *fakeSlideshow) GenerateSlideshow(_ context.Context, req ai.SlideshowRequest) (json.RawMessage, error) {
	f.got = req
	return json.RawMessage(`{"video":"ok"}`), nil
}
