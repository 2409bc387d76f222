package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/gin-gonic/gin"
)

type attemptsResponse struct {
	AttemptsRemaining int  `json:"attemptsRemaining"`
	IsPaid            bool `json:"isPaid"`
}

func (s *Server) attempts(c *gin.Context) {
	a, err := s.deps.Quota.GetAttempts(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, attemptsResponse{AttemptsRemaining: a.Remaining, IsPaid: a.IsPaid})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	ArtifactRef       string `json:"artifactRef"`
	URL               string `json:"url,omitempty"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

func (s *Server) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.logger, common.ErrValidation)
		return
	}

	res, err := s.deps.Generator.Generate(c.Request.Context(), principal(c), req.Prompt)
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, generateResponse{
		ArtifactRef:       res.ArtifactRef,
		URL:               res.URL,
		AttemptsRemaining: res.Remaining,
	})
}

type artifactResponse struct {
	Ref       string    `json:"ref"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) artifacts(c *gin.Context) {
	p := principal(c)
	list, err := s.deps.Artifacts.ListAllArtifacts(c.Request.Context(), p.UserID, p.VisitorID)
	if err != nil {
		writeError(c, s.logger, err)
		return
	}

	out := make([]artifactResponse, 0, len(list))
	for _, a := range list {
		out = append(out, artifactResponse{Ref: a.Ref, URL: a.URL, Prompt: a.Prompt, CreatedAt: a.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": out})
}
