package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playmate/playmate/internal/httpx"
	"github.com/playmate/playmate/internal/identity"
)

// Handler exposes register and login endpoints.
type Handler struct {
	ids    *identity.Service
	tokens *Service
}

func NewHandler(ids *identity.Service, tokens *Service) *Handler {
	return &Handler{ids: ids, tokens: tokens}
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Nickname    string `json:"nickname"`
	IsCompanion bool   `json:"is_companion"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserView is the public projection of a user.
type UserView struct {
	ID          int64         `json:"id"`
	Username    string        `json:"username"`
	Nickname    string        `json:"nickname"`
	Avatar      string        `json:"avatar"`
	Role        identity.Role `json:"role"`
	IsCompanion bool          `json:"is_companion"`
}

// ViewOf projects user without its password hash.
func ViewOf(user identity.User) UserView {
	return UserView{
		ID:          user.ID,
		Username:    user.Username,
		Nickname:    user.Nickname,
		Avatar:      user.Avatar,
		Role:        user.Role,
		IsCompanion: user.IsCompanion,
	}
}

type loginResponse struct {
	Token
	User UserView `json:"user"`
}

// Register creates a user account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Register(c.UserContext(), identity.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Nickname:    req.Nickname,
		IsCompanion: req.IsCompanion,
	})
	if err != nil {
		return err
	}
	return httpx.Created(c, ViewOf(user))
}

// Login validates credentials and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return err
	}
	token, err := h.tokens.Issue(user)
	if err != nil {
		return err
	}
	return httpx.OK(c, loginResponse{Token: token, User: ViewOf(user)})
}
