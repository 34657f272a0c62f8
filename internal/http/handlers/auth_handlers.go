package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/http/middleware"
)

// AuthHandlers handles the OTP login flow and the auth session endpoints
type AuthHandlers struct {
	flow    domain.OTPFlow
	links   domain.MagicLinkResolver
	authSvc domain.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(flow domain.OTPFlow, links domain.MagicLinkResolver, authSvc domain.AuthService) *AuthHandlers {
	return &AuthHandlers{
		flow:    flow,
		links:   links,
		authSvc: authSvc,
	}
}

// OTPRequest represents an OTP request
type OTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// ResendRequest represents an OTP resend request
type ResendRequest struct {
	SID string `json:"sid" binding:"required"`
}

// MagicLinkRequest represents a magic link resolution request
type MagicLinkRequest struct {
	Token string `json:"token" binding:"required"`
}

// OTPVerifyRequest represents OTP verification request
type OTPVerifyRequest struct {
	SID  string `json:"sid" binding:"required"`
	Code string `json:"code" binding:"required"`
}

// ProfileRequest represents a profile completion request
type ProfileRequest struct {
	Name          string `json:"name" binding:"required"`
	TermsAccepted bool   `json:"terms_accepted"`
}

// RefreshRequest represents token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RequestOTP starts a login for a phone number
func (h *AuthHandlers) RequestOTP(c *gin.Context) {
	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	challenge, err := h.flow.RequestOTP(c.Request.Context(), req.Phone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": challengeJSON(challenge)})
}

// ResendOTP sends a fresh code for the phone behind a sid
func (h *AuthHandlers) ResendOTP(c *gin.Context) {
	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	challenge, err := h.flow.Resend(c.Request.Context(), req.SID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": challengeJSON(challenge)})
}

// ResolveMagicLink turns a magic link token into the pending challenge
func (h *AuthHandlers) ResolveMagicLink(c *gin.Context) {
	var req MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	challenge, err := h.links.Resolve(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": challengeJSON(challenge)})
}

// VerifyOTP checks the code and issues the token pair
func (h *AuthHandlers) VerifyOTP(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.flow.Verify(c.Request.Context(), req.SID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"access_token":  result.AccessToken,
			"refresh_token": result.RefreshToken,
			"token_type":    "Bearer",
			"expires_in":    result.ExpiresIn,
			"user_id":       result.User.ID,
			"is_new_user":   result.IsNewUser,
			"next_step":     result.NextStep,
		},
	})
}

// OTPStatus reports where a sid is in the flow
func (h *AuthHandlers) OTPStatus(c *gin.Context) {
	state, err := h.flow.Status(c.Request.Context(), c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}

	data := gin.H{
		"sid":          state.SID,
		"step":         state.Step,
		"masked_phone": state.MaskedPhone,
	}
	if state.Step == domain.StepOTPPending {
		data["expires_in"] = state.ExpiresIn
		data["cooldown"] = state.Cooldown
		data["attempts_left"] = state.AttemptsLeft
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// RestartOTP discards a sid and sends the client back to the phone step
func (h *AuthHandlers) RestartOTP(c *gin.Context) {
	state, err := h.flow.Restart(c.Request.Context(), c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"step": state.Step}})
}

// CompleteProfile records the name and terms acceptance of a new user
// (requires authentication)
func (h *AuthHandlers) CompleteProfile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user not found in context")
		return
	}

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.flow.CompleteProfile(c.Request.Context(), userID, req.Name, req.TermsAccepted)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"user":      userJSON(user),
			"next_step": domain.StepForUser(user),
		},
	})
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.authSvc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"access_token": result.AccessToken,
			"token_type":   "Bearer",
			"expires_in":   result.ExpiresIn,
			"next_step":    result.NextStep,
		},
	})
}

// Me handles getting user profile (requires authentication)
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user not found in context")
		return
	}

	user, err := h.authSvc.GetUserProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": userJSON(user)})
}

// Logout handles user logout (requires authentication)
func (h *AuthHandlers) Logout(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user not found in context")
		return
	}

	if err := h.authSvc.Logout(c.Request.Context(), userID, middleware.SessionID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"message": "Logged out successfully",
		},
	})
}

func challengeJSON(ch *domain.OTPChallenge) gin.H {
	return gin.H{
		"sid":          ch.SID,
		"masked_phone": ch.MaskedPhone,
		"expires_in":   ch.ExpiresIn,
		"cooldown":     ch.Cooldown,
		"step":         ch.Step,
	}
}

func userJSON(user *domain.User) gin.H {
	out := gin.H{
		"id":                user.ID,
		"phone":             user.Phone,
		"name":              user.Name,
		"role":              user.Role,
		"is_active":         user.IsActive,
		"phone_verified":    user.PhoneVerified,
		"profile_completed": user.ProfileCompleted,
		"created_at":        user.CreatedAt,
		"updated_at":        user.UpdatedAt,
	}
	if user.TermsAcceptedAt != nil {
		out["terms_accepted_at"] = user.TermsAcceptedAt.UTC().Format(time.RFC3339)
	}
	return out
}
