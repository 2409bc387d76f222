package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/server/services"
	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func tokens(p *services.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.logger, common.ErrMissingCredentials)
		return
	}
	pair, err := s.deps.Accounts.Register(c.Request.Context(), req.Email, req.Password, c.GetString(keyVisitorID))
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, tokens(pair))
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.logger, common.ErrMissingCredentials)
		return
	}
	pair, err := s.deps.Accounts.Login(c.Request.Context(), req.Email, req.Password, c.GetString(keyVisitorID))
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokens(pair))
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		writeError(c, s.logger, common.ErrInvalidToken)
		return
	}
	pair, err := s.deps.Accounts.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokens(pair))
}
