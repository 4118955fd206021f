package core

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Route declares one endpoint together with its authorization policy.
type Route struct {
	Method  string
	Pattern string
	Kind    PolicyKind
	Handler gin.HandlerFunc
}

type credentialsRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type emojiRequest struct {
	Name     string `form:"name" json:"name"`
	Smiley   string `form:"smiley" json:"smiley"`
	Category string `form:"category" json:"category"`
	Keywords string `form:"keywords" json:"keywords"`
}

type emojiPatchRequest struct {
	Name     *string `form:"name" json:"name"`
	Smiley   *string `form:"smiley" json:"smiley"`
	Category *string `form:"category" json:"category"`
	Keywords *string `form:"keywords" json:"keywords"`
}

// NewRouter constructs the Gin engine with routes and their policies wired.
// metrics and instance may be nil.
func NewRouter(cfg Config, store *Store, authService *RepositoryAuthService, metrics *MetricsService, instance *InstanceState) *gin.Engine {
	r := gin.New()

	// Global middleware: recovery -> request log -> counters -> origin/CORS
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	if instance != nil {
		r.Use(instance.Track())
	}
	r.Use(OriginMiddleware(cfg))

	tokens := authService.Tokens()
	owners := NewOwnershipResolver(tokens, store.Emojis)
	routes := apiRoutes(store, authService, owners, metrics, instance)

	policies := make([]RoutePolicy, 0, len(routes))
	for _, rt := range routes {
		policies = append(policies, RoutePolicy{Method: rt.Method, Pattern: rt.Pattern, Kind: rt.Kind})
	}
	gate := NewGate(policies, tokens, owners, metrics)
	for _, rt := range routes {
		r.Handle(rt.Method, rt.Pattern, gate.Middleware(), rt.Handler)
	}
	return r
}

func apiRoutes(store *Store, authService *RepositoryAuthService, owners *OwnershipResolver, metrics *MetricsService, instance *InstanceState) []Route {
	emojis := store.Emojis
	clock := authService.Tokens().clock

	welcome := func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to the naija emoji api homepage")
	}

	healthz := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}

	status := func(c *gin.Context) {
		c.JSON(http.StatusOK, CollectSystemStatus(c.Request.Context(), store, metrics, instance))
	}

	register := func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBind(&req); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid request body")
			return
		}
		user, err := authService.Register(c.Request.Context(), req.Username, req.Password)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{
				"message":  "User has been successfully registered",
				"username": user.Username,
			})
		case errors.Is(err, ErrUsernameTaken):
			respondMessage(c, http.StatusBadRequest, "This username already exists")
		case errors.Is(err, ErrInvalidCredentials):
			respondMessage(c, http.StatusBadRequest, "username and password are required")
		default:
			log.WithError(err).Error("register failed")
			respondInternal(c)
		}
	}

	login := func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBind(&req); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid request body")
			return
		}
		token, err := authService.Login(c.Request.Context(), req.Username, req.Password)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"token": token})
		case errors.Is(err, ErrInvalidCredentials):
			respondMessage(c, http.StatusUnauthorized, "Invalid username and/or password")
		case errors.Is(err, ErrTooManyAttempts):
			respondMessage(c, http.StatusTooManyRequests, "Too many login attempts")
		default:
			log.WithError(err).Error("login failed")
			respondInternal(c)
		}
	}

	logout := func(c *gin.Context) {
		err := authService.Logout(c.Request.Context(), c.GetHeader(TokenHeader))
		switch {
		case err == nil:
			respondMessage(c, http.StatusOK, "Logged out!")
		case errors.Is(err, ErrInvalidToken):
			respondMessage(c, http.StatusUnauthorized, msgInvalidToken)
		default:
			log.WithError(err).Error("logout failed")
			respondInternal(c)
		}
	}

	listEmojis := func(c *gin.Context) {
		items, err := emojis.List(c.Request.Context())
		if err != nil {
			log.WithError(err).Error("list emoji failed")
			respondInternal(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"emojis": items})
	}

	getEmoji := func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			respondMessage(c, http.StatusNotFound, "Emoji not found")
			return
		}
		e, err := emojis.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				respondMessage(c, http.StatusNotFound, "Emoji not found")
				return
			}
			log.WithError(err).Error("get emoji failed")
			respondInternal(c)
			return
		}
		c.JSON(http.StatusOK, e)
	}

	createEmoji := func(c *gin.Context) {
		var req emojiRequest
		if err := c.ShouldBind(&req); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid request body")
			return
		}
		in := EmojiInput{Name: req.Name, Smiley: req.Smiley, Category: req.Category, Keywords: req.Keywords}.normalized()
		if in.Name == "" || in.Smiley == "" {
			respondMessage(c, http.StatusBadRequest, "name and smiley are required")
			return
		}

		ctx := c.Request.Context()
		owner, err := owners.Owner(ctx, c.GetHeader(TokenHeader))
		if err != nil {
			log.WithError(err).Error("resolve token owner failed")
			respondInternal(c)
			return
		}
		if owner == "" {
			respondMessage(c, http.StatusUnauthorized, msgInvalidToken)
			return
		}
		e, err := emojis.Create(ctx, in, owner, clock.now())
		if err != nil {
			log.WithError(err).Error("create emoji failed")
			respondInternal(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Emoji successfully added!",
			"emoji":   e,
		})
	}

	updateEmoji := func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			respondMessage(c, http.StatusNotFound, "Emoji not found")
			return
		}
		var req emojiPatchRequest
		if err := c.ShouldBind(&req); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid request body")
			return
		}
		patch := EmojiPatch{Name: req.Name, Smiley: req.Smiley, Category: req.Category, Keywords: req.Keywords}
		if patch.Empty() || patch.BlanksRequired() {
			respondMessage(c, http.StatusBadRequest, "Smiley could not be updated")
			return
		}
		updated, err := emojis.Update(c.Request.Context(), id, patch, clock.now())
		if err != nil {
			log.WithError(err).Error("update emoji failed")
			respondInternal(c)
			return
		}
		if !updated {
			respondMessage(c, http.StatusNotFound, "Emoji not found")
			return
		}
		respondMessage(c, http.StatusOK, "Smiley updated successfully")
	}

	deleteEmoji := func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			respondMessage(c, http.StatusNotFound, "Emoji not found")
			return
		}
		if err := emojis.Delete(c.Request.Context(), id); err != nil {
			log.WithError(err).Error("delete emoji failed")
			respondInternal(c)
			return
		}
		respondMessage(c, http.StatusOK, "successfully Deleted!")
	}

	return []Route{
		{http.MethodGet, "/", PolicyPublic, welcome},
		{http.MethodGet, "/healthz", PolicyPublic, healthz},
		{http.MethodGet, "/status", PolicyPublic, status},

		{http.MethodPost, "/register", PolicyPublic, register},
		{http.MethodPost, "/auth/login", PolicyPublic, login},
		{http.MethodGet, "/auth/logout", PolicyProtected, logout},
		{http.MethodPost, "/auth/logout", PolicyProtected, logout},

		{http.MethodGet, "/emojis", PolicyPublic, listEmojis},
		{http.MethodGet, "/emojis/:id", PolicyPublic, getEmoji},
		{http.MethodPost, "/emojis", PolicyProtected, createEmoji},
		{http.MethodPut, "/emojis/:id", PolicyOwnerOnly, updateEmoji},
		{http.MethodPatch, "/emojis/:id", PolicyOwnerOnly, updateEmoji},
		{http.MethodDelete, "/emojis/:id", PolicyOwnerOnly, deleteEmoji},
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
