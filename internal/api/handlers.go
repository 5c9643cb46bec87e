package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/mixer"
)

const deckKey = "deck"

type pitchRequest struct {
	Percent *float64 `json:"percent" binding:"required"`
}

type bendRequest struct {
	Direction int `json:"direction" binding:"required,oneof=-1 1"`
}

type levelRequest struct {
	Gain *float64 `json:"gain" binding:"required"`
}

type crossfaderRequest struct {
	Position *float64 `json:"position" binding:"required"`
}

// reply writes the current snapshot, with the error if there was one.
func (s *Server) reply(c *gin.Context, err error) {
	snap := s.mixer.Snapshot()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "state": snap})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// deckParam resolves :deck for the deck routes.
func (s *Server) deckParam(c *gin.Context) {
	id, err := mixer.ParseDeckID(c.Param("deck"))
	if err != nil {
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Set(deckKey, id)
	c.Next()
}

func deckID(c *gin.Context) mixer.DeckID {
	return c.MustGet(deckKey).(mixer.DeckID)
}

// playContext bounds how long a play request waits for the engine.
func (s *Server) playContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.ResumeTimeout)
}

func (s *Server) health(c *gin.Context) {
	snap := s.mixer.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"engine":  snap.Engine,
		"service": "diskjockey",
	})
}

func (s *Server) gesture(c *gin.Context) {
	s.reply(c, s.mixer.Gesture())
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, s.mixer.Snapshot())
}

func (s *Server) loadTrack(c *gin.Context) {
	id := deckID(c)
	if err := s.mixer.Gesture(); err != nil {
		s.reply(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.reply(c, fmt.Errorf("%w: %v", ErrNoFile, err))
		return
	}
	if header.Size > s.cfg.MaxUploadBytes() {
		s.reply(c, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, header.Size))
		return
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		s.reply(c, fmt.Errorf("upload dir: %w", err))
		return
	}

	name := filepath.Base(header.Filename)
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	if err := c.SaveUploadedFile(header, path); err != nil {
		s.reply(c, fmt.Errorf("save upload: %w", err))
		return
	}

	track, err := s.load(path, name,
		audio.WithOwnedFile(),
		audio.WithOnRelease(func() { log.Printf("Deck %s released: %s", id, name) }),
	)
	if err != nil {
		os.Remove(path)
		s.mixer.LoadFailed(id, err)
		s.reply(c, err)
		return
	}
	if err := s.mixer.LoadTrack(id, track); err != nil {
		track.Release()
		s.reply(c, err)
		return
	}
	s.reply(c, nil)
}

func (s *Server) togglePlay(c *gin.Context) {
	ctx, cancel := s.playContext(c)
	defer cancel()
	s.reply(c, s.mixer.TogglePlay(ctx, deckID(c)))
}

func (s *Server) cueTap(c *gin.Context) {
	s.reply(c, s.mixer.CueTap(deckID(c)))
}

func (s *Server) cueHold(c *gin.Context) {
	ctx, cancel := s.playContext(c)
	defer cancel()
	s.reply(c, s.mixer.CueHoldStart(ctx, deckID(c)))
}

func (s *Server) cueRelease(c *gin.Context) {
	s.reply(c, s.mixer.CueHoldEnd(deckID(c)))
}

func (s *Server) setPitch(c *gin.Context) {
	var req pitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.reply(c, s.mixer.SetPitch(deckID(c), audio.SnapPitch(*req.Percent)))
}

func (s *Server) bendStart(c *gin.Context) {
	var req bendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.reply(c, s.mixer.BendStart(deckID(c), req.Direction))
}

func (s *Server) bendEnd(c *gin.Context) {
	s.reply(c, s.mixer.BendEnd(deckID(c)))
}

func (s *Server) setLevel(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.reply(c, s.mixer.SetLevel(deckID(c), *req.Gain))
}

func (s *Server) setCrossfader(c *gin.Context) {
	var req crossfaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	s.reply(c, s.mixer.SetCrossfader(*req.Position))
}
