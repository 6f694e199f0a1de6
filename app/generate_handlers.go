package app

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnp2003/captify-ai/app/generate"
	"github.com/johnp2003/captify-ai/app/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type generateImage struct {
	MIMEType string `json:"mimeType" binding:"required"`
	// Data is standard base64, optionally as a data: URL.
	Data string `json:"data" binding:"required"`
}

type generateRequest struct {
	ContentType string         `json:"contentType" binding:"required"`
	Prompt      string         `json:"prompt" binding:"required,max=2000"`
	Tone        string         `json:"tone"`
	Audience    string         `json:"audience"`
	Length      string         `json:"length"`
	Language    string         `json:"language"`
	Emojis      string         `json:"emojis"`
	Image       *generateImage `json:"image"`
}

func (r generateRequest) toRequest() (generate.Request, error) {
	req := generate.Request{
		ContentType: generate.ContentType(strings.ToLower(strings.TrimSpace(r.ContentType))),
		Prompt:      r.Prompt,
		Options: generate.Options{
			Tone:     r.Tone,
			Audience: r.Audience,
			Length:   r.Length,
			Language: r.Language,
			Emojis:   r.Emojis,
		},
	}
	if r.Image != nil {
		data := r.Image.Data
		if i := strings.Index(data, ";base64,"); strings.HasPrefix(data, "data:") && i >= 0 {
			data = data[i+len(";base64,"):]
		}
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return generate.Request{}, errors.New("image data must be base64")
		}
		req.Image = &generate.Image{MIMEType: r.Image.MIMEType, Data: raw}
	}
	return req, nil
}

// Generate produces post drafts for the signed-in user and spends points on success.
func (s *Server) Generate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	limit := int64(64 << 10)
	if s.MaxImageBytes > 0 {
		limit += int64(s.MaxImageBytes)/3*4 + 4
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var body generateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.Generator.Generate(c.Request.Context(), userID, req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, generate.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, generate.ErrInsufficientPoints):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":  "not enough points",
			"points": res.Points,
		})
	case errors.Is(err, generate.ErrModelUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "content generation failed, no points were spent"})
	default:
		s.Log.WithError(err).Error("generate failed", map[string]interface{}{"user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate content"})
	}
}

// Points returns the signed-in user's balance.
func (s *Server) Points(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	points, err := s.Users.GetPoints(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		s.Log.WithError(err).Error("read points failed", map[string]interface{}{"user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load points"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

type historyEntry struct {
	ID          string    `json:"id"`
	ContentType string    `json:"contentType"`
	Prompt      string    `json:"prompt"`
	Posts       []string  `json:"posts"`
	CreatedAt   time.Time `json:"createdAt"`
}

// History lists the newest generations first.
func (s *Server) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	items, err := s.Users.ListGeneratedContent(c.Request.Context(), userID, limit)
	if err != nil {
		s.Log.WithError(err).Error("list history failed", map[string]interface{}{"user_id": userID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	out := make([]historyEntry, 0, len(items))
	for _, it := range items {
		out = append(out, historyEntry{
			ID:          it.ID,
			ContentType: it.ContentType,
			Prompt:      it.Prompt,
			Posts:       generate.HistoryPosts(it),
			CreatedAt:   it.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}
