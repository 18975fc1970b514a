package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/response"
)

// CookieName carries the principal token for browser sessions.
const CookieName = "lbt_principal"

// UserFinder looks up the local record for a principal; nil without error when there is none.
type UserFinder interface {
	FindByCRSid(ctx context.Context, crsid string) (*models.User, error)
}

// MeResponse describes the signed-in principal.
type MeResponse struct {
	CRSid      string             `json:"crsid"`
	Registered bool               `json:"registered"`
	User       *models.UserPublic `json:"user,omitempty"`
}

// Handler handles the sign-on callback and session endpoints.
type Handler struct {
	jwt          *JWTService
	users        UserFinder
	secureCookie bool
	logger       *zap.Logger
}

// NewHandler creates an auth handler. secureCookie should be set when served over https.
func NewHandler(jwt *JWTService, users UserFinder, secureCookie bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{jwt: jwt, users: users, secureCookie: secureCookie, logger: logger}
}

// Callback handles GET /auth/callback?token=...&next=...
// The gateway redirects here after sign-on with a principal token.
func (h *Handler) Callback(c *gin.Context) {
	token := c.Query("token")
	claims, err := h.jwt.Validate(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, h.jwt.expireHours*3600, "/", "", h.secureCookie, true)
	h.logger.Info("signed in", zap.String("crsid", claims.CRSid()))
	c.Redirect(http.StatusFound, SafeNext(c.Query("next")))
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", h.secureCookie, true)
	response.NoContent(c)
}

// Me handles GET /auth/me. The principal middleware must have run.
func (h *Handler) Me(c *gin.Context) {
	crsid := c.GetString("principal")
	if crsid == "" {
		response.Unauthorized(c, "sign in required")
		return
	}
	u, err := h.users.FindByCRSid(c.Request.Context(), crsid)
	if err != nil {
		h.logger.Error("find user", zap.String("crsid", crsid), zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	out := MeResponse{CRSid: crsid}
	if u != nil {
		pub := u.ToPublic()
		out.User = &pub
		out.Registered = !u.IsVisitor()
	}
	response.OK(c, out)
}

// SafeNext keeps redirects on this site: only absolute paths are allowed.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
