package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type searchContent struct {
	Text string `json:"text"`
}

type searchHit struct {
	Username string        `json:"username"`
	Avatar   string        `json:"avatar"`
	Content  searchContent `json:"content"`
}

type searchResult struct {
	Score float64   `json:"score"`
	Hit   searchHit `json:"hit"`
}

const (
	systemUsername = "Backend system message"
	systemAvatar   = "https://www.gravatar.com/avatar/3bf43d16dedfc155a52744d98345f57b?d=retro"
)

func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Health check passed.",
	})
}

// handleSearch answers with a single system hit until search is backed by an index
func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	c.JSON(http.StatusOK, []searchResult{{
		Score: 1,
		Hit: searchHit{
			Username: systemUsername,
			Avatar:   systemAvatar,
			Content: searchContent{
				Text: fmt.Sprintf("Search endpoint not connected yet. You searched for '%s'", q),
			},
		},
	}})
}
