package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/magicdeeds/magic-studio/internal/gemini"
	"github.com/magicdeeds/magic-studio/internal/models"
	"github.com/magicdeeds/magic-studio/internal/service"
)

type userResponse struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Tier        models.Tier `json:"tier"`
	MagicEnergy int         `json:"magicEnergy"`
	IsGuest     bool        `json:"isGuest"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Tier:        u.Tier,
		MagicEnergy: u.MagicEnergy,
		IsGuest:     u.IsGuest,
	}
}

type authRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	user, token, err := s.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: toUserResponse(user), Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	user, token, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(user), Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	user, err := s.users.UpdateProfile(r.Context(), userID(r), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type rechargeRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleRecharge(w http.ResponseWriter, r *http.Request) {
	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	balance, err := s.users.Recharge(r.Context(), userID(r), req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"magicEnergy": balance})
}

type promoRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRedeemPromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	balance, err := s.promos.Apply(r.Context(), userID(r), req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"magicEnergy": balance})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.users.Transactions(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type generateTextRequest struct {
	Prompt             string   `json:"prompt"`
	Model              string   `json:"model"`
	SystemInstructions []string `json:"systemInstructions,omitempty"`
}

type generateImageRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	ImageSize      string `json:"imageSize,omitempty"`
	ReferenceImage string `json:"referenceImage,omitempty"`
	Batch          int    `json:"batch,omitempty"`
}

type generateVideoRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	ReferenceImage string `json:"referenceImage,omitempty"`
}

type generateResponse struct {
	Kind        models.Kind        `json:"kind"`
	Outputs     []string           `json:"outputs"`
	Cost        int                `json:"cost"`
	MagicEnergy int                `json:"magicEnergy"`
	Entries     []archiveEntryBody `json:"entries"`
}

type archiveEntryBody struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Kind      models.Kind `json:"kind"`
	Content   string      `json:"content"`
	Preview   string      `json:"preview"`
	Tags      []string    `json:"tags"`
	CreatedAt time.Time   `json:"createdAt"`
}

func toGenerateResponse(res *service.Result) generateResponse {
	entries := make([]archiveEntryBody, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, archiveEntryBody{
			ID:        e.ID,
			Title:     e.Title,
			Kind:      e.Kind,
			Content:   e.Content,
			Preview:   e.Preview,
			Tags:      e.Tags,
			CreatedAt: e.CreatedAt,
		})
	}
	return generateResponse{
		Kind:        res.Kind,
		Outputs:     res.Outputs,
		Cost:        res.Cost,
		MagicEnergy: res.Balance,
		Entries:     entries,
	}
}

func (s *Server) handleGenerateText(w http.ResponseWriter, r *http.Request) {
	var req generateTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	res, err := s.generations.GenerateText(r.Context(), userID(r), service.TextParams{
		Prompt:             req.Prompt,
		Model:              models.ModelType(req.Model),
		SystemInstructions: req.SystemInstructions,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerateResponse(res))
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	res, err := s.generations.GenerateImage(r.Context(), userID(r), service.ImageParams{
		Prompt:         req.Prompt,
		Model:          models.ModelType(req.Model),
		AspectRatio:    req.AspectRatio,
		ImageSize:      req.ImageSize,
		ReferenceImage: req.ReferenceImage,
		Batch:          req.Batch,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerateResponse(res))
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req generateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	res, err := s.generations.GenerateVideo(r.Context(), userID(r), service.VideoParams{
		Prompt:         req.Prompt,
		Model:          models.ModelType(req.Model),
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		ReferenceImage: req.ReferenceImage,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerateResponse(res))
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	entries, err := s.archive.List(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	body := make([]archiveEntryBody, 0, len(entries))
	for _, e := range entries {
		body = append(body, archiveEntryBody{
			ID:        e.ID,
			Title:     e.Title,
			Kind:      e.Kind,
			Content:   e.Content,
			Preview:   e.Preview,
			Tags:      e.Tags,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.archive.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entry == nil {
		writeErrorCode(w, http.StatusNotFound, "not_found", "archive entry not found")
		return
	}
	writeJSON(w, http.StatusOK, archiveEntryBody{
		ID:        entry.ID,
		Title:     entry.Title,
		Kind:      entry.Kind,
		Content:   entry.Content,
		Preview:   entry.Preview,
		Tags:      entry.Tags,
		CreatedAt: entry.CreatedAt,
	})
}

func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.archive.Delete(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		writeErrorCode(w, http.StatusNotFound, "not_found", "archive entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.notifications.List(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid notification id")
		return
	}
	marked, err := s.notifications.MarkRead(r.Context(), userID(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !marked {
		writeErrorCode(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createPromoRequest struct {
	Code    string `json:"code"`
	Energy  int    `json:"energy"`
	MaxUses int    `json:"maxUses"`
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	promo, err := s.promos.CreatePromo(r.Context(), req.Code, req.Energy, req.MaxUses)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, promo)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeError maps a failure onto the taxonomy so the client can tell
// "fix it yourself" (balance, credentials) from "try again later" (quota)
// from "the request is broken" (empty result).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, service.ErrInsufficientEnergy):
		writeErrorCode(w, http.StatusPaymentRequired, "insufficient_energy", "not enough magic energy; recharge and try again")
	case errors.Is(err, service.ErrGuestNotAllowed):
		writeErrorCode(w, http.StatusForbidden, "guest_not_allowed", "sign up to generate content")
	case errors.Is(err, service.ErrUserNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, service.ErrEmailTaken):
		writeErrorCode(w, http.StatusConflict, "email_taken", "email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, service.ErrPromoInvalid):
		writeErrorCode(w, http.StatusNotFound, "promo_invalid", "promo code not found")
	case errors.Is(err, service.ErrPromoAlreadyRedeemed):
		writeErrorCode(w, http.StatusConflict, "promo_redeemed", "promo code already redeemed")
	case gemini.IsKind(err, gemini.KindRateLimited):
		writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "generation quota exhausted; rotate credentials or try again later")
	case gemini.IsKind(err, gemini.KindAuthOrPermission):
		writeErrorCode(w, http.StatusBadGateway, "upstream_auth", "generation credentials rejected; reselect your API key")
	case gemini.IsKind(err, gemini.KindEmptyResult):
		writeErrorCode(w, http.StatusBadGateway, "empty_result", "the model returned no usable artifact")
	case gemini.IsKind(err, gemini.KindTimedOut):
		writeErrorCode(w, http.StatusGatewayTimeout, "timed_out", "generation timed out")
	case gemini.IsKind(err, gemini.KindTransport):
		writeErrorCode(w, http.StatusBadGateway, "upstream_error", "generation provider request failed")
	default:
		s.log.Error("request failed", "err", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
