package core

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// TokenHeader carries the bearer token on protected requests.
const TokenHeader = "user-token"

// PolicyKind is the authorization class of a route.
type PolicyKind int

const (
	// PolicyPublic routes need no token.
	PolicyPublic PolicyKind = iota
	// PolicyProtected routes need a live token.
	PolicyProtected
	// PolicyOwnerOnly routes need a live token whose user created the
	// emoji named by the :id parameter.
	PolicyOwnerOnly
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyPublic:
		return "public"
	case PolicyProtected:
		return "protected"
	case PolicyOwnerOnly:
		return "owner_only"
	default:
		return "unknown"
	}
}

const (
	msgInvalidToken           = "Invalid Token"
	msgAuthRequirementsFailed = "At least one of the authentication requirements failed"
)

// Decision reasons, also used as counter names.
const (
	ReasonPublic       = "public"
	ReasonAuthorized   = "authorized"
	ReasonInvalidToken = "invalid_token"
	ReasonNotOwner     = "not_owner"
	ReasonNotFound     = "not_found"
)

// RoutePolicy declares the policy of one (method, route pattern) pair.
type RoutePolicy struct {
	Method  string
	Pattern string
	Kind    PolicyKind
}

// Decision is the gate's verdict for one request.
type Decision struct {
	Proceed bool
	Status  int
	Message string
	Reason  string
}

func allow(reason string) Decision {
	return Decision{Proceed: true, Status: http.StatusOK, Reason: reason}
}

func deny(message, reason string) Decision {
	return Decision{Status: http.StatusUnauthorized, Message: message, Reason: reason}
}

// DecisionRecorder observes gate decisions.
type DecisionRecorder interface {
	Record(ctx context.Context, reason string)
}

// Gate enforces route policies. It keeps no per-request state; everything it
// needs is read from the stores on each call.
type Gate struct {
	policies map[routeKey]PolicyKind
	tokens   *TokenValidator
	owners   *OwnershipResolver
	recorder DecisionRecorder
}

type routeKey struct {
	method  string
	pattern string
}

// NewGate resolves the policy table once. recorder may be nil.
func NewGate(policies []RoutePolicy, tokens *TokenValidator, owners *OwnershipResolver, recorder DecisionRecorder) *Gate {
	table := make(map[routeKey]PolicyKind, len(policies))
	for _, p := range policies {
		table[routeKey{p.Method, p.Pattern}] = p.Kind
	}
	return &Gate{policies: table, tokens: tokens, owners: owners, recorder: recorder}
}

// Classify returns the policy declared for method and pattern. Undeclared
// pairs are treated as protected.
func (g *Gate) Classify(method, pattern string) PolicyKind {
	if k, ok := g.policies[routeKey{method, pattern}]; ok {
		return k
	}
	return PolicyProtected
}

// Authorize evaluates the declared policy of (method, pattern) for token and
// the raw resource id. A non-nil error means a store failed and no decision
// could be made.
func (g *Gate) Authorize(ctx context.Context, method, pattern, token, resourceID string) (Decision, error) {
	switch g.Classify(method, pattern) {
	case PolicyPublic:
		return allow(ReasonPublic), nil

	case PolicyOwnerOnly:
		valid, err := g.tokens.IsValid(ctx, token)
		if err != nil {
			return Decision{}, err
		}
		if !valid {
			return deny(msgAuthRequirementsFailed, ReasonInvalidToken), nil
		}
		id, err := strconv.ParseInt(resourceID, 10, 64)
		if err != nil {
			return deny(msgAuthRequirementsFailed, ReasonNotFound), nil
		}
		exists, err := g.owners.ResourceExists(ctx, id)
		if err != nil {
			return Decision{}, err
		}
		if !exists {
			return deny(msgAuthRequirementsFailed, ReasonNotFound), nil
		}
		owns, err := g.owners.UserOwnsResource(ctx, token, id)
		if err != nil {
			return Decision{}, err
		}
		if !owns {
			return deny(msgAuthRequirementsFailed, ReasonNotOwner), nil
		}
		return allow(ReasonAuthorized), nil

	default:
		valid, err := g.tokens.IsValid(ctx, token)
		if err != nil {
			return Decision{}, err
		}
		if !valid {
			return deny(msgInvalidToken, ReasonInvalidToken), nil
		}
		return allow(ReasonAuthorized), nil
	}
}

// Middleware runs Authorize for the matched route and aborts with the
// decision's status when the request may not proceed.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		d, err := g.Authorize(ctx, c.Request.Method, c.FullPath(), c.GetHeader(TokenHeader), c.Param("id"))
		if err != nil {
			log.WithError(err).WithField("route", c.FullPath()).Error("authorization lookup failed")
			respondInternal(c)
			c.Abort()
			return
		}
		c.Set(ctxKeyGateReason, d.Reason)
		if g.recorder != nil {
			g.recorder.Record(ctx, d.Reason)
		}
		if !d.Proceed {
			respondMessage(c, d.Status, d.Message)
			c.Abort()
			return
		}
		c.Next()
	}
}
