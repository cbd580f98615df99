// Account HTTP handlers.
//
//   - POST /auth/register (create an account, returns a token)
//   - POST /auth/login    (exchange credentials for a token)
//   - POST /auth/logout   (acknowledged; tokens are stateless)
//   - GET  /auth/me       (the signed-in user)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-donations-backend/internal/http/middleware"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Email    string  `json:"email"    binding:"required,email,max=255" example:"ada@example.com"`
	Password string  `json:"password" binding:"required,min=6,max=72"  example:"s3cret!"`
	Name     *string `json:"name"     binding:"omitempty,max=255"      example:"Ada"`
	Phone    *string `json:"phone"    binding:"omitempty,msisdn"       example:"237670000000"`
}

// LoginRequest is the JSON payload for signing in.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required"  example:"ada@example.com"`
	Password string `json:"password" binding:"required"  example:"s3cret!"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message" example:"logged out"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Creates a user with a bcrypt-hashed password and returns a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RegisterRequest  true  "Account payload"
// @Success     201  {object}  services.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input or email taken"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	sess, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		failService(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().Str("user_id", sess.User.ID).Msg("user registered")
	ok(c, http.StatusCreated, sess)
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  services.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid email or password"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	sess, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Tokens are stateless; the client discards its token.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MessageResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	ok(c, http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.accounts.Me(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
