package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartbee/services"
)

const defaultHistoryLimit = 100

// handleLatest returns the most recent reading for a node along with its
// derived status.
// GET /api/data/node/:nodeId/latest
func (s *Server) handleLatest(c *gin.Context) {
	nodeID := c.Param("nodeId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	reading, err := s.store.LatestReading(ctx, nodeID)
	if err != nil {
		s.internalError(c, "latest reading query failed", err)
		return
	}
	if reading == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "no data for this node"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    reading,
		"status":  s.status.Status(nodeID),
	})
}

// handleHistorical returns raw readings within a time window.
// GET /api/data/node/:nodeId/historical?startDate=&endDate=&limit=
func (s *Server) handleHistorical(c *gin.Context) {
	nodeID := c.Param("nodeId")

	start, end, ok := timeWindow(c, 24*time.Hour)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	readings, err := s.store.HistoricalReadings(ctx, nodeID, start, end, limit)
	if err != nil {
		s.internalError(c, "historical readings query failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    readings,
		"count":   len(readings),
		"period":  gin.H{"start": start, "end": end},
	})
}

// handleAggregated returns bucketed min/max/avg history.
// GET /api/data/node/:nodeId/aggregated?startDate=&endDate=&bucket=
func (s *Server) handleAggregated(c *gin.Context) {
	nodeID := c.Param("nodeId")

	start, end, ok := timeWindow(c, 7*24*time.Hour)
	if !ok {
		return
	}

	bucket := c.DefaultQuery("bucket", "day")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	aggregates, err := s.store.Aggregates(ctx, nodeID, start, end, bucket)
	if errors.Is(err, services.ErrBadBucket) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err != nil {
		s.internalError(c, "aggregated readings query failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    aggregates,
		"period":  gin.H{"start": start, "end": end, "bucket": bucket},
	})
}

// handleNodeStatus returns the derived connectivity classification.
// GET /api/nodes/:nodeId/status
func (s *Server) handleNodeStatus(c *gin.Context) {
	nodeID := c.Param("nodeId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	reading, err := s.store.LatestReading(ctx, nodeID)
	if err != nil {
		s.internalError(c, "latest reading query failed", err)
		return
	}

	resp := gin.H{
		"success": true,
		"nodeId":  nodeID,
		"status":  s.status.Status(nodeID),
	}
	if reading != nil {
		resp["lastSeen"] = reading.Timestamp
	}
	c.JSON(http.StatusOK, resp)
}

// timeWindow parses startDate/endDate query params, defaulting to the last
// span ending now. It writes a 400 and returns ok=false on malformed input.
func timeWindow(c *gin.Context, span time.Duration) (start, end time.Time, ok bool) {
	end = time.Now().UTC()
	start = end.Add(-span)

	if startStr := c.Query("startDate"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid startDate"})
			return start, end, false
		}
		start = t.UTC()
	}
	if endStr := c.Query("endDate"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid endDate"})
			return start, end, false
		}
		end = t.UTC()
	}
	return start, end, true
}

// internalError logs the cause and answers with a generic 5xx; query failures
// never leak driver detail to clients.
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
}
