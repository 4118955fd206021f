package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedDecisions struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordedDecisions) Record(_ context.Context, reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

var testPolicies = []RoutePolicy{
	{http.MethodGet, "/emojis/:id", PolicyPublic},
	{http.MethodPost, "/emojis", PolicyProtected},
	{http.MethodDelete, "/emojis/:id", PolicyOwnerOnly},
}

func TestGateClassify(t *testing.T) {
	g := NewGate(testPolicies, nil, nil, nil)

	assert.Equal(t, PolicyPublic, g.Classify(http.MethodGet, "/emojis/:id"))
	assert.Equal(t, PolicyProtected, g.Classify(http.MethodPost, "/emojis"))
	assert.Equal(t, PolicyOwnerOnly, g.Classify(http.MethodDelete, "/emojis/:id"))
	// Undeclared pairs need a token.
	assert.Equal(t, PolicyProtected, g.Classify(http.MethodPut, "/emojis/:id"))
	assert.Equal(t, PolicyProtected, g.Classify(http.MethodGet, "/unknown"))
}

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newTestClock()
	auth := newTestAuth(t, store, clock, time.Hour, nil)

	adaToken := registerAndLogin(t, auth, "ada", "pw-ada")
	bobToken := registerAndLogin(t, auth, "bob", "pw-bob")
	e, err := store.Emojis.Create(ctx, EmojiInput{Name: "Wink", Smiley: ";)"}, "ada", clock.Now())
	require.NoError(t, err)
	id := strconv.FormatInt(e.ID, 10)

	g := NewGate(testPolicies, auth.Tokens(), NewOwnershipResolver(auth.Tokens(), store.Emojis), nil)

	cases := []struct {
		name    string
		method  string
		pattern string
		token   string
		id      string
		proceed bool
		message string
		reason  string
	}{
		{"public without token", http.MethodGet, "/emojis/:id", "", id, true, "", ReasonPublic},
		{"protected with token", http.MethodPost, "/emojis", bobToken, "", true, "", ReasonAuthorized},
		{"protected without token", http.MethodPost, "/emojis", "", "", false, msgInvalidToken, ReasonInvalidToken},
		{"protected with garbage", http.MethodPost, "/emojis", "garbage", "", false, msgInvalidToken, ReasonInvalidToken},
		{"owner", http.MethodDelete, "/emojis/:id", adaToken, id, true, "", ReasonAuthorized},
		{"not owner", http.MethodDelete, "/emojis/:id", bobToken, id, false, msgAuthRequirementsFailed, ReasonNotOwner},
		{"owner only without token", http.MethodDelete, "/emojis/:id", "", id, false, msgAuthRequirementsFailed, ReasonInvalidToken},
		{"missing resource", http.MethodDelete, "/emojis/:id", adaToken, "9999", false, msgAuthRequirementsFailed, ReasonNotFound},
		{"malformed id", http.MethodDelete, "/emojis/:id", adaToken, "abc", false, msgAuthRequirementsFailed, ReasonNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := g.Authorize(ctx, tc.method, tc.pattern, tc.token, tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.proceed, d.Proceed)
			assert.Equal(t, tc.reason, d.Reason)
			if !tc.proceed {
				assert.Equal(t, http.StatusUnauthorized, d.Status)
				assert.Equal(t, tc.message, d.Message)
			}
		})
	}

	t.Run("expired token", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		d, err := g.Authorize(ctx, http.MethodDelete, "/emojis/:id", adaToken, id)
		require.NoError(t, err)
		assert.False(t, d.Proceed)
		assert.Equal(t, ReasonInvalidToken, d.Reason)
	})
}

type failingUsers struct {
	UserRepository
}

func (failingUsers) FindByToken(context.Context, string) (*UserRecord, error) {
	return nil, errors.New("connection refused")
}

func TestGateMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := newTestStore(t)
	clock := newTestClock()
	auth := newTestAuth(t, store, clock, time.Hour, nil)
	token := registerAndLogin(t, auth, "ada", "pw-ada")

	rec := &recordedDecisions{}
	g := NewGate(testPolicies, auth.Tokens(), NewOwnershipResolver(auth.Tokens(), store.Emojis), rec)

	r := gin.New()
	r.POST("/emojis", g.Middleware(), func(c *gin.Context) {
		reason, _ := c.Get(ctxKeyGateReason)
		c.String(http.StatusOK, reason.(string))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/emojis", nil)
	req.Header.Set(TokenHeader, token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ReasonAuthorized, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/emojis", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Invalid Token"}`, w.Body.String())

	assert.Equal(t, []string{ReasonAuthorized, ReasonInvalidToken}, rec.reasons)
}

func TestGateMiddlewareStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := NewTokenValidator(failingUsers{}, time.Hour, newTestClock().Now)
	g := NewGate(testPolicies, tokens, nil, nil)

	r := gin.New()
	r.POST("/emojis", g.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/emojis", nil)
	req.Header.Set(TokenHeader, "some-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, w.Body.String())
}
