package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/magicdeeds/magic-studio/internal/config"
	"github.com/magicdeeds/magic-studio/internal/gemini"
	"github.com/magicdeeds/magic-studio/internal/metrics"
	"github.com/magicdeeds/magic-studio/internal/models"
)

// textPreviewPlaceholder is the archive preview used for text artifacts,
// which have no renderable image of their own.
const textPreviewPlaceholder = "https://images.unsplash.com/photo-1618005182384-a83a8bd57fbe?auto=format&fit=crop&q=80&w=600"

var defaultTags = []string{"AI-Generated", "Commercial"}

type GenerationService struct {
	cfg           config.Config
	log           *slog.Logger
	users         UserStore
	archive       ArchiveStore
	notifications NotificationStore
	energy        EnergyStore
	gateway       Gateway
	assets        AssetStore
}

func NewGenerationService(cfg config.Config, log *slog.Logger, users UserStore, archive ArchiveStore, notifications NotificationStore, energy EnergyStore, gateway Gateway, assets AssetStore) *GenerationService {
	return &GenerationService{
		cfg:           cfg,
		log:           log,
		users:         users,
		archive:       archive,
		notifications: notifications,
		energy:        energy,
		gateway:       gateway,
		assets:        assets,
	}
}

type TextParams struct {
	Prompt string
	Model  models.ModelType
	// SystemInstructions fans the prompt out across multiple writing
	// styles; empty means a single call with the default instruction.
	SystemInstructions []string
}

type ImageParams struct {
	Prompt         string
	Model          models.ModelType
	AspectRatio    string
	ImageSize      string
	ReferenceImage string
	Batch          int
}

type VideoParams struct {
	Prompt         string
	Model          models.ModelType
	AspectRatio    string
	Resolution     string
	ReferenceImage string
}

type Result struct {
	Kind    models.Kind
	Outputs []string
	Cost    int
	Balance int
	Entries []models.ArchiveEntry
}

func (s *GenerationService) GenerateText(ctx context.Context, userID int64, p TextParams) (*Result, error) {
	if p.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidRequest)
	}
	if models.KindOf(p.Model) != models.KindText {
		return nil, fmt.Errorf("%w: unsupported text model %s", ErrInvalidRequest, p.Model)
	}

	n := len(p.SystemInstructions)
	if n == 0 {
		n = 1
	}
	cost := models.EnergyCost(p.Model) * n

	user, err := s.preflight(ctx, userID, cost)
	if err != nil {
		return nil, err
	}

	outputs := make([]string, n)
	if len(p.SystemInstructions) == 0 {
		out, err := s.gateway.GenerateText(ctx, gemini.TextRequest{Prompt: p.Prompt, Model: p.Model})
		if err != nil {
			metrics.GenerationsTotal.WithLabelValues(string(models.KindText), "failure").Inc()
			return nil, err
		}
		outputs[0] = out
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, instruction := range p.SystemInstructions {
			g.Go(func() error {
				out, err := s.gateway.GenerateText(gctx, gemini.TextRequest{
					Prompt:            p.Prompt,
					Model:             p.Model,
					SystemInstruction: instruction,
				})
				if err != nil {
					return err
				}
				outputs[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			metrics.GenerationsTotal.WithLabelValues(string(models.KindText), "failure").Inc()
			return nil, err
		}
	}

	items := make([]archiveItem, 0, n)
	for _, out := range outputs {
		items = append(items, archiveItem{content: out, preview: textPreviewPlaceholder})
	}
	return s.settle(ctx, user, cost, models.KindText, p.Model, p.Prompt, outputs, items)
}

func (s *GenerationService) GenerateImage(ctx context.Context, userID int64, p ImageParams) (*Result, error) {
	if p.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidRequest)
	}
	if models.KindOf(p.Model) != models.KindImage {
		return nil, fmt.Errorf("%w: unsupported image model %s", ErrInvalidRequest, p.Model)
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "1:1"
	}
	if p.ImageSize == "" {
		p.ImageSize = "1K"
	}
	if p.Batch <= 0 {
		p.Batch = 1
	}
	if p.Batch > 4 {
		p.Batch = 4
	}

	cost := models.EnergyCost(p.Model) * p.Batch
	user, err := s.preflight(ctx, userID, cost)
	if err != nil {
		return nil, err
	}

	dataURIs, err := s.gateway.GenerateImages(ctx, gemini.ImageRequest{
		Prompt:         p.Prompt,
		Model:          p.Model,
		AspectRatio:    p.AspectRatio,
		ImageSize:      p.ImageSize,
		ReferenceImage: p.ReferenceImage,
	}, p.Batch)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(models.KindImage), "failure").Inc()
		return nil, err
	}

	urls := make([]string, 0, len(dataURIs))
	items := make([]archiveItem, 0, len(dataURIs))
	for _, dataURI := range dataURIs {
		url, err := s.storeDataURI(ctx, dataURI)
		if err != nil {
			metrics.GenerationsTotal.WithLabelValues(string(models.KindImage), "failure").Inc()
			return nil, err
		}
		urls = append(urls, url)
		items = append(items, archiveItem{content: url, preview: url})
	}

	return s.settle(ctx, user, cost, models.KindImage, p.Model, p.Prompt, urls, items)
}

func (s *GenerationService) GenerateVideo(ctx context.Context, userID int64, p VideoParams) (*Result, error) {
	if p.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidRequest)
	}
	if models.KindOf(p.Model) != models.KindVideo {
		return nil, fmt.Errorf("%w: unsupported video model %s", ErrInvalidRequest, p.Model)
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "16:9"
	}
	if p.Resolution == "" {
		if p.Model == models.ModelVideoHD {
			p.Resolution = "1080p"
		} else {
			p.Resolution = "720p"
		}
	}

	cost := models.EnergyCost(p.Model)
	user, err := s.preflight(ctx, userID, cost)
	if err != nil {
		return nil, err
	}

	video, err := s.gateway.GenerateVideo(ctx, gemini.VideoRequest{
		Prompt:         p.Prompt,
		Model:          p.Model,
		AspectRatio:    p.AspectRatio,
		Resolution:     p.Resolution,
		ReferenceImage: p.ReferenceImage,
	})
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(models.KindVideo), "failure").Inc()
		return nil, err
	}

	url, err := s.assets.Upload(ctx, video.Bytes, video.MimeType)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(models.KindVideo), "failure").Inc()
		return nil, fmt.Errorf("store video: %w", err)
	}

	items := []archiveItem{{content: url, preview: url}}
	return s.settle(ctx, user, cost, models.KindVideo, p.Model, p.Prompt, []string{url}, items)
}

// preflight loads the user and checks affordability strictly before any
// network dispatch; an insufficient balance has zero side effects.
func (s *GenerationService) preflight(ctx context.Context, userID int64, cost int) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.IsGuest {
		return nil, ErrGuestNotAllowed
	}
	if user.MagicEnergy < cost {
		return nil, ErrInsufficientEnergy
	}
	return user, nil
}

type archiveItem struct {
	content string
	preview string
}

// settle runs the post-success half of the transaction: debit the ledger,
// record the audit row, archive the artifacts, and raise a low-energy
// alert when the balance drops below the threshold.
func (s *GenerationService) settle(ctx context.Context, user *models.User, cost int, kind models.Kind, model models.ModelType, prompt string, outputs []string, items []archiveItem) (*Result, error) {
	balance, ok, err := s.users.DebitEnergy(ctx, user.ID, cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent request won the balance between preflight and here.
		return nil, ErrInsufficientEnergy
	}

	metrics.GenerationsTotal.WithLabelValues(string(kind), "success").Inc()
	metrics.EnergyDebitedTotal.Add(float64(cost))

	if err := s.energy.Record(ctx, &models.EnergyTransaction{
		UserID:       user.ID,
		Amount:       -cost,
		BalanceAfter: balance,
		Reason:       models.ReasonGeneration,
		Reference:    string(model),
	}); err != nil {
		s.log.Error("failed to record energy transaction", "err", err, "user_id", user.ID)
	}

	entries := make([]models.ArchiveEntry, 0, len(items))
	for _, item := range items {
		entry := models.ArchiveEntry{
			ID:        newArchiveID(),
			UserID:    user.ID,
			Title:     deriveTitle(prompt),
			Kind:      kind,
			Content:   item.content,
			Preview:   item.preview,
			Tags:      defaultTags,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.archive.Append(ctx, &entry); err != nil {
			s.log.Error("failed to archive artifact", "err", err, "user_id", user.ID)
			continue
		}
		entries = append(entries, entry)
	}

	if balance < s.cfg.LowEnergyThreshold {
		if err := s.notifications.Create(ctx, &models.Notification{
			UserID: user.ID,
			Title:  "Magic energy running low",
			Body:   fmt.Sprintf("Only %d energy left. Recharge to keep creating.", balance),
			Kind:   models.NotificationAlert,
		}); err != nil {
			s.log.Error("failed to create low-energy notification", "err", err, "user_id", user.ID)
		}
	}

	return &Result{
		Kind:    kind,
		Outputs: outputs,
		Cost:    cost,
		Balance: balance,
		Entries: entries,
	}, nil
}

// storeDataURI decodes a base64 data URI and uploads the raw bytes,
// returning a public URL.
func (s *GenerationService) storeDataURI(ctx context.Context, dataURI string) (string, error) {
	mime, payload, err := gemini.SplitDataURI(dataURI)
	if err != nil {
		return "", fmt.Errorf("parse generated image: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode generated image: %w", err)
	}
	url, err := s.assets.Upload(ctx, raw, mime)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return url, nil
}

func newArchiveID() string {
	return fmt.Sprintf("m_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func deriveTitle(prompt string) string {
	const maxTitle = 48
	runes := []rune(prompt)
	if len(runes) <= maxTitle {
		return prompt
	}
	return string(runes[:maxTitle]) + "…"
}
