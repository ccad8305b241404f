package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/line"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/config"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/http/middleware"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/service"
)

// AuthHandler exposes the session endpoints.
type AuthHandler struct {
	Sessions *service.SessionService
	Config   config.Config
	Logger   *zap.Logger
}

type bootstrapRequest struct {
	LinkToken string `json:"linkToken" binding:"required"`
}

type loginRequest struct {
	UserID      string `json:"userId" binding:"required"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
	ShopID      string `json:"shopId"`
}

type selectRequest struct {
	UserID      string `json:"userId" binding:"required"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
	ShopID      string `json:"shopId" binding:"required"`
}

// Bootstrap exchanges a pre-signed login link for an authorize URL.
func (h *AuthHandler) Bootstrap(c *gin.Context) {
	var req bootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "linkToken is required"})
		return
	}

	authorizeURL, err := h.Sessions.BootstrapLink(c.Request.Context(), req.LinkToken)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authorizeURL})
}

// LoginURL returns an authorize URL without a shop binding.
func (h *AuthHandler) LoginURL(c *gin.Context) {
	authorizeURL, err := h.Sessions.LoginURL(c.Request.Context())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authorizeURL})
}

// Login performs a direct chat login, optionally scoped to a shop.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "userId is required"})
		return
	}

	profile := line.Profile{UserID: req.UserID, DisplayName: req.DisplayName, PictureURL: req.PictureURL}
	result, err := h.Sessions.Login(c.Request.Context(), profile, req.ShopID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, result)
}

// Select completes a login after shop disambiguation.
func (h *AuthHandler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "userId and shopId are required"})
		return
	}

	profile := line.Profile{UserID: req.UserID, DisplayName: req.DisplayName, PictureURL: req.PictureURL}
	result, err := h.Sessions.Select(c.Request.Context(), profile, req.ShopID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, result)
}

// Callback is the OAuth redirect target. The browser always ends up back on
// the frontend, success and no-access alike.
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Missing code or state"})
		return
	}

	result, err := h.Sessions.CompleteCallback(c.Request.Context(), code, state)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.Redirect(http.StatusTemporaryRedirect, result.RedirectURL)
}

// Refresh rotates the refresh cookie into a new token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(h.Config.RefreshCookieName)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Refresh token missing"})
		return
	}

	result, err := h.Sessions.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, result)
}

type firebaseBridgeRequest struct {
	Token string `json:"token" binding:"required"`
}

// FirebaseBridge mints a primary-provider custom token for a chat session.
func (h *AuthHandler) FirebaseBridge(c *gin.Context) {
	var req firebaseBridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "token is required"})
		return
	}

	custom, err := h.Sessions.FirebaseBridge(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"firebaseToken": custom})
}

// Me returns the resolved identity behind the request credential.
func (h *AuthHandler) Me(c *gin.Context) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider": auth.Provider,
		"uid":      auth.UID,
		"email":    auth.Email,
		"name":     auth.Name,
		"picture":  auth.Picture,
		"shopId":   auth.ShopID,
		"role":     auth.Role,
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	c.SetSameSite(h.Config.CookieSameSite)
	c.SetCookie(
		h.Config.RefreshCookieName,
		refreshToken,
		int(h.Config.RefreshTokenTTL.Seconds()),
		"/",
		"",
		h.Config.CookieSecure,
		true,
	)
}
