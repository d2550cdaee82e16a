package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ingestPlaysBody struct {
	TrackID string `json:"track_id"`
	Count   int64  `json:"count"`
}

// IngestPlays records play events against a track and accrues streaming
// earnings for the track owner when their account is approved.
func (s *Server) IngestPlays(c *gin.Context) {
	var body ingestPlaysBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	trackID, err := parseBodyID(body.TrackID, "track_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if body.Count <= 0 {
		AbortWithError(c, newValidationError("count", "invalid_count", "count must be positive"))
		return
	}

	ctx := c.Request.Context()
	creatorID, err := s.stats.AddPlays(ctx, trackID, body.Count)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.monetizationSvc.AccrueEarnings(ctx, creatorID, body.Count); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"track_id": trackID.String(),
		"count":    body.Count,
	})
}
