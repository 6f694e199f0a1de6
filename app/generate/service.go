package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/metrics"
	"github.com/johnp2003/captify-ai/app/models"
	"github.com/johnp2003/captify-ai/app/store"
)

var (
	ErrInsufficientPoints = errors.New("not enough points")
	ErrModelUnavailable   = errors.New("content model unavailable")
)

// PointsStore is what generation needs from the entitlement store.
type PointsStore interface {
	GetPoints(ctx context.Context, userID string) (int64, error)
	AdjustPoints(ctx context.Context, userID string, delta int64) (int64, error)
	SaveGeneratedContent(ctx context.Context, c models.GeneratedContent) (models.GeneratedContent, error)
}

type Result struct {
	ID          string      `json:"id,omitempty"`
	ContentType ContentType `json:"contentType"`
	Posts       []string    `json:"posts"`
	Points      int64       `json:"points"`
}

type Service struct {
	model         Model
	store         PointsStore
	cost          int64
	maxImageBytes int
	log           logger.Logger
}

func NewService(model Model, st PointsStore, cost int64, maxImageBytes int, log logger.Logger) *Service {
	if cost <= 0 {
		cost = 5
	}
	return &Service{
		model:         model,
		store:         st,
		cost:          cost,
		maxImageBytes: maxImageBytes,
		log:           log,
	}
}

// Generate checks the balance, calls the model, debits the cost and records history.
// Nothing is debited when the model fails.
func (s *Service) Generate(ctx context.Context, userID string, req Request) (Result, error) {
	if err := req.Validate(s.maxImageBytes); err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(req.ContentType), "invalid").Inc()
		return Result{}, err
	}
	label := string(req.ContentType)
	log := s.log.With(map[string]interface{}{
		"user_id":      userID,
		"content_type": label,
	})

	balance, err := s.store.GetPoints(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return Result{}, fmt.Errorf("read points: %w", err)
	}
	if balance < s.cost {
		metrics.GenerationsTotal.WithLabelValues(label, "insufficient_points").Inc()
		return Result{Points: balance}, ErrInsufficientPoints
	}

	start := time.Now()
	text, err := s.model.Generate(ctx, BuildPrompt(req), req.Image)
	metrics.GenerationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).Error("content model call failed", nil)
		metrics.GenerationsTotal.WithLabelValues(label, "model_error").Inc()
		return Result{Points: balance}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	posts := ParsePosts(req.ContentType, text)

	balance, err = s.store.AdjustPoints(ctx, userID, -s.cost)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientPoints) || errors.Is(err, store.ErrUserNotFound) {
			metrics.GenerationsTotal.WithLabelValues(label, "insufficient_points").Inc()
			return Result{}, ErrInsufficientPoints
		}
		return Result{}, fmt.Errorf("debit points: %w", err)
	}

	res := Result{ContentType: req.ContentType, Posts: posts, Points: balance}
	saved, err := s.store.SaveGeneratedContent(ctx, models.GeneratedContent{
		UserID:      userID,
		ContentType: string(req.ContentType),
		Prompt:      req.Prompt,
		Content:     strings.Join(posts, PostSeparator),
	})
	if err != nil {
		log.WithError(err).Warn("save generated content failed", nil)
	} else {
		res.ID = saved.ID
	}

	metrics.GenerationsTotal.WithLabelValues(label, "ok").Inc()
	log.Info("content generated", map[string]interface{}{
		"posts":   len(posts),
		"balance": balance,
	})
	return res, nil
}
