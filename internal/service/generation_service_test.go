package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicdeeds/magic-studio/internal/config"
	"github.com/magicdeeds/magic-studio/internal/gemini"
	"github.com/magicdeeds/magic-studio/internal/models"
)

// --- Fakes ---

type fakeUserStore struct {
	user       *models.User
	debits     []int
	debitFails bool
	findErr    error
}

func (f *fakeUserStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.user == nil || f.user.ID != id {
		return nil, nil
	}
	u := *f.user
	return &u, nil
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.user != nil && f.user.Email == email {
		u := *f.user
		return &u, nil
	}
	return nil, nil
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = 1
	f.user = user
	return user, nil
}

func (f *fakeUserStore) UpdateProfile(ctx context.Context, userID int64, name string, tier models.Tier) error {
	f.user.Name = name
	f.user.Tier = tier
	return nil
}

func (f *fakeUserStore) DebitEnergy(ctx context.Context, userID int64, amount int) (int, bool, error) {
	if f.debitFails || f.user.MagicEnergy < amount {
		return 0, false, nil
	}
	f.debits = append(f.debits, amount)
	f.user.MagicEnergy -= amount
	return f.user.MagicEnergy, true, nil
}

func (f *fakeUserStore) CreditEnergy(ctx context.Context, userID int64, amount int) (int, error) {
	f.user.MagicEnergy += amount
	return f.user.MagicEnergy, nil
}

type fakeArchiveStore struct {
	entries []models.ArchiveEntry
	err     error
}

func (f *fakeArchiveStore) Append(ctx context.Context, entry *models.ArchiveEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeArchiveStore) GetByID(ctx context.Context, id string) (*models.ArchiveEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeArchiveStore) ListByUser(ctx context.Context, userID int64) ([]models.ArchiveEntry, error) {
	return f.entries, nil
}

func (f *fakeArchiveStore) Delete(ctx context.Context, userID int64, id string) (bool, error) {
	for i, e := range f.entries {
		if e.ID == id && e.UserID == userID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeNotificationStore struct {
	created []models.Notification
}

func (f *fakeNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotificationStore) ListByUser(ctx context.Context, userID int64) ([]models.Notification, error) {
	return f.created, nil
}

func (f *fakeNotificationStore) MarkRead(ctx context.Context, userID, id int64) (bool, error) {
	return false, nil
}

type fakeEnergyStore struct {
	records []models.EnergyTransaction
}

func (f *fakeEnergyStore) Record(ctx context.Context, tx *models.EnergyTransaction) error {
	f.records = append(f.records, *tx)
	return nil
}

func (f *fakeEnergyStore) ListByUser(ctx context.Context, userID int64, limit int) ([]models.EnergyTransaction, error) {
	return f.records, nil
}

type fakeGateway struct {
	textCalls  int
	imageCalls int
	videoCalls int
	textOut    string
	imageOut   []string
	videoOut   *gemini.Video
	err        error
}

func (f *fakeGateway) GenerateText(ctx context.Context, req gemini.TextRequest) (string, error) {
	f.textCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.textOut, nil
}

func (f *fakeGateway) GenerateImages(ctx context.Context, req gemini.ImageRequest, n int) ([]string, error) {
	f.imageCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, n)
	for i := range out {
		out[i] = f.imageOut[i%len(f.imageOut)]
	}
	return out, nil
}

func (f *fakeGateway) GenerateVideo(ctx context.Context, req gemini.VideoRequest) (*gemini.Video, error) {
	f.videoCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.videoOut, nil
}

type fakeAssetStore struct {
	uploads int
	err     error
}

func (f *fakeAssetStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/asset-1", nil
}

type fixture struct {
	svc           *GenerationService
	users         *fakeUserStore
	archive       *fakeArchiveStore
	notifications *fakeNotificationStore
	energy        *fakeEnergyStore
	gateway       *fakeGateway
	assets        *fakeAssetStore
}

func newFixture(energy int) *fixture {
	users := &fakeUserStore{user: &models.User{ID: 7, Email: "maker@example.com", MagicEnergy: energy}}
	archive := &fakeArchiveStore{}
	notifications := &fakeNotificationStore{}
	ledger := &fakeEnergyStore{}
	gateway := &fakeGateway{
		textOut:  "generated copy",
		imageOut: []string{"data:image/png;base64,aGVsbG8="},
		videoOut: &gemini.Video{Bytes: []byte("mp4"), MimeType: "video/mp4"},
	}
	assets := &fakeAssetStore{}
	cfg := config.Config{LowEnergyThreshold: 10}
	svc := NewGenerationService(cfg, slog.Default(), users, archive, notifications, ledger, gateway, assets)
	return &fixture{svc: svc, users: users, archive: archive, notifications: notifications, energy: ledger, gateway: gateway, assets: assets}
}

func TestGenerateImageDebitsAndArchives(t *testing.T) {
	f := newFixture(10)

	res, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug on a marble table",
		Model:  models.ModelImageFlash,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Cost)
	assert.Equal(t, 7, res.Balance)
	assert.Equal(t, []int{3}, f.users.debits)

	require.Len(t, f.archive.entries, 1)
	entry := f.archive.entries[0]
	assert.Equal(t, models.KindImage, entry.Kind)
	assert.Equal(t, "https://cdn.example.com/asset-1", entry.Content)
	assert.Equal(t, []string{"AI-Generated", "Commercial"}, entry.Tags)
	assert.NotEmpty(t, entry.ID)

	require.Len(t, f.energy.records, 1)
	assert.Equal(t, -3, f.energy.records[0].Amount)
	assert.Equal(t, 7, f.energy.records[0].BalanceAfter)
	assert.Equal(t, models.ReasonGeneration, f.energy.records[0].Reason)
}

func TestGenerateImageInsufficientEnergyHasNoSideEffects(t *testing.T) {
	f := newFixture(2)

	_, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelImagePro,
	})
	require.ErrorIs(t, err, ErrInsufficientEnergy)

	assert.Equal(t, 0, f.gateway.imageCalls)
	assert.Empty(t, f.users.debits)
	assert.Empty(t, f.archive.entries)
	assert.Empty(t, f.energy.records)
	assert.Equal(t, 2, f.users.user.MagicEnergy)
}

func TestGenerateImageFailedGenerationNotBilled(t *testing.T) {
	f := newFixture(50)
	f.gateway.err = &gemini.Error{Kind: gemini.KindRateLimited, Status: 429, Message: "quota"}

	_, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelImageFlash,
	})
	require.Error(t, err)
	assert.True(t, gemini.IsKind(err, gemini.KindRateLimited))

	assert.Empty(t, f.users.debits)
	assert.Empty(t, f.archive.entries)
	assert.Equal(t, 50, f.users.user.MagicEnergy)
}

func TestGenerateImageBatchBilledOnce(t *testing.T) {
	f := newFixture(50)

	res, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelImageFlash,
		Batch:  4,
	})
	require.NoError(t, err)

	// base 3 times 4 variants, as a single debit
	assert.Equal(t, 12, res.Cost)
	assert.Equal(t, []int{12}, f.users.debits)
	assert.Len(t, res.Outputs, 4)
	assert.Len(t, f.archive.entries, 4)
	assert.Equal(t, 4, f.assets.uploads)
}

func TestGenerateImageUploadFailureNotBilled(t *testing.T) {
	f := newFixture(50)
	f.assets.err = errors.New("bucket unavailable")

	_, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelImageFlash,
	})
	require.Error(t, err)
	assert.Empty(t, f.users.debits)
	assert.Empty(t, f.archive.entries)
}

func TestGenerateImageRejectsWrongModel(t *testing.T) {
	f := newFixture(50)

	_, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelTextFlash,
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, f.gateway.imageCalls)
}

func TestGenerateTextSingleCall(t *testing.T) {
	f := newFixture(10)

	res, err := f.svc.GenerateText(context.Background(), 7, TextParams{
		Prompt: "write a product blurb",
		Model:  models.ModelTextFlash,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Cost)
	assert.Equal(t, 9, res.Balance)
	assert.Equal(t, 1, f.gateway.textCalls)
	require.Len(t, f.archive.entries, 1)
	assert.Equal(t, models.KindText, f.archive.entries[0].Kind)
	assert.Equal(t, "generated copy", f.archive.entries[0].Content)
	assert.Equal(t, textPreviewPlaceholder, f.archive.entries[0].Preview)
}

func TestGenerateTextFanOut(t *testing.T) {
	f := newFixture(50)

	res, err := f.svc.GenerateText(context.Background(), 7, TextParams{
		Prompt:             "write a product blurb",
		Model:              models.ModelTextPro,
		SystemInstructions: []string{"playful tone", "formal tone", "luxury tone"},
	})
	require.NoError(t, err)

	// 2 per call, three styles, single debit
	assert.Equal(t, 6, res.Cost)
	assert.Equal(t, []int{6}, f.users.debits)
	assert.Equal(t, 3, f.gateway.textCalls)
	assert.Len(t, res.Outputs, 3)
	assert.Len(t, f.archive.entries, 3)
}

func TestGenerateVideoDebitsOnce(t *testing.T) {
	f := newFixture(200)

	res, err := f.svc.GenerateVideo(context.Background(), 7, VideoParams{
		Prompt: "a drone shot of a coastline",
		Model:  models.ModelVideoFast,
	})
	require.NoError(t, err)

	assert.Equal(t, 70, res.Cost)
	assert.Equal(t, 130, res.Balance)
	assert.Equal(t, []int{70}, f.users.debits)
	assert.Equal(t, 1, f.gateway.videoCalls)
	assert.Equal(t, 1, f.assets.uploads)
	require.Len(t, f.archive.entries, 1)
	assert.Equal(t, models.KindVideo, f.archive.entries[0].Kind)
}

func TestGenerateVideoHDResolutionDefault(t *testing.T) {
	f := newFixture(200)

	res, err := f.svc.GenerateVideo(context.Background(), 7, VideoParams{
		Prompt: "a drone shot",
		Model:  models.ModelVideoHD,
	})
	require.NoError(t, err)
	assert.Equal(t, 140, res.Cost)
	assert.Equal(t, 60, res.Balance)
}

func TestGuestCannotGenerate(t *testing.T) {
	f := newFixture(100)
	f.users.user.IsGuest = true

	_, err := f.svc.GenerateText(context.Background(), 7, TextParams{
		Prompt: "hi",
		Model:  models.ModelTextFlash,
	})
	require.ErrorIs(t, err, ErrGuestNotAllowed)
	assert.Equal(t, 0, f.gateway.textCalls)
}

func TestUnknownUser(t *testing.T) {
	f := newFixture(100)

	_, err := f.svc.GenerateText(context.Background(), 99, TextParams{
		Prompt: "hi",
		Model:  models.ModelTextFlash,
	})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestLowEnergyNotification(t *testing.T) {
	f := newFixture(12)

	_, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelImageFlash,
	})
	require.NoError(t, err)

	// balance dropped to 9, below the threshold of 10
	require.Len(t, f.notifications.created, 1)
	assert.Equal(t, models.NotificationAlert, f.notifications.created[0].Kind)
}

func TestConcurrentDebitLoss(t *testing.T) {
	f := newFixture(100)
	f.users.debitFails = true

	_, err := f.svc.GenerateImage(context.Background(), 7, ImageParams{
		Prompt: "a red mug",
		Model:  models.ModelImageFlash,
	})
	require.ErrorIs(t, err, ErrInsufficientEnergy)
	assert.Equal(t, 1, f.gateway.imageCalls)
	assert.Empty(t, f.archive.entries)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short prompt", deriveTitle("short prompt"))

	long := "a very long prompt that keeps going and going and going far past the cutoff"
	title := deriveTitle(long)
	assert.Len(t, []rune(title), 49)
	assert.Equal(t, "…", string([]rune(title)[48]))
}
