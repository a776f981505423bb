package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/nbt"
	"github.com/n90p/minecraft-world-downloader/internal/protocol"
	"github.com/n90p/minecraft-world-downloader/internal/util"
)

// handlePing is a liveness check.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pong":   true,
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleStatus summarizes the downloader's current state.
func (s *Server) handleStatus(c *gin.Context) {
	counts, err := s.store.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions":       s.proxy.SessionCount(),
		"chunks_stored":  total,
		"chunks_by_dim":  counts,
		"chunks_pending": s.store.Pending(),
		"chunks_written": s.store.Written(),
		"uptime":         time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleVersions lists the game versions the decoder knows.
func (s *Server) handleVersions(c *gin.Context) {
	versions := protocol.KnownVersions()
	out := make([]gin.H, 0, len(versions))
	for _, name := range versions {
		out = append(out, gin.H{
			"name":     name,
			"protocol": protocol.ProtocolForName(name),
		})
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

// handleSystem returns host resource usage.
func (s *Server) handleSystem(c *gin.Context) {
	info := util.GetSystemInfo()

	resp := gin.H{"system": info}
	if cpu, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}
	if du, err := util.GetDiskUsage(s.cfg.GetProxyData().WorldDirectory); err == nil {
		resp["disk"] = du
	}
	c.JSON(http.StatusOK, resp)
}

// handleSessions lists every live session.
func (s *Server) handleSessions(c *gin.Context) {
	snapshots := s.proxy.Snapshots()
	c.JSON(http.StatusOK, gin.H{
		"sessions": snapshots,
		"total":    len(snapshots),
	})
}

// handleSession returns one live session by id.
func (s *Server) handleSession(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, ok := s.proxy.Session(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": id})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// handleRecentChunks lists the most recently captured columns.
func (s *Server) handleRecentChunks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	chunks, err := s.store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chunks": chunks,
		"count":  len(chunks),
	})
}

// handleChunkCount returns stored column counts per dimension.
func (s *Server) handleChunkCount(c *gin.Context) {
	counts, err := s.store.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// handleChunk serves one stored column rendered as its canonical tree text.
func (s *Server) handleChunk(c *gin.Context) {
	x, errX := strconv.ParseInt(c.Param("x"), 10, 32)
	z, errZ := strconv.ParseInt(c.Param("z"), 10, 32)
	if errX != nil || errZ != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk coordinates"})
		return
	}
	dimension := "minecraft:" + c.Param("dimension")

	tag, err := s.store.Get(int32(x), int32(z), dimension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chunk not stored"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"x":         x,
		"z":         z,
		"dimension": dimension,
		"data":      nbt.Canonical(tag),
	})
}

// handleGetConfig returns the full configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"proxy_data":       s.cfg.GetProxyData(),
		"application_data": s.cfg.GetApplicationData(),
	})
}

// handleSetProxyData updates individual proxy configuration fields.
func (s *Server) handleSetProxyData(c *gin.Context) {
	s.applyConfigUpdate(c, "proxy_data", s.cfg.UpdateProxyField)
}

// handleSetAppData updates individual application configuration fields.
func (s *Server) handleSetAppData(c *gin.Context) {
	s.applyConfigUpdate(c, "application_data", s.cfg.UpdateAppField)
}

func (s *Server) applyConfigUpdate(c *gin.Context, section string, update func(string, interface{}) error) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	for key, value := range fields {
		if err := update(key, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": key})
			return
		}
		s.eventBus.Emit(c.Request.Context(), events.Event{
			Type:    events.EventConfigChanged,
			Source:  "api",
			Payload: events.ConfigChangedPayload{Section: section, Key: key, Value: value},
		})
	}

	if err := s.cfg.Save(); err != nil {
		log.Error().Err(err).Msg("failed to persist config update")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update applied but not persisted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(fields)})
}
