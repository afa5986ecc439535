package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/genstudio/internal/artifact"
	"github.com/local/genstudio/internal/dispatcher"
	"github.com/local/genstudio/internal/session"
	"github.com/local/genstudio/internal/store"
)

const sessionCookie = "session"

// Studio is the generation surface the handlers call into.
type Studio interface {
	GenerateImage(ctx context.Context, prompt string) (artifact.Image, error)
	EditImage(ctx context.Context, prompt string, base artifact.Image) (artifact.Image, error)
	Chat(ctx context.Context, userID, convID, message string, useSearch bool) (artifact.Reply, error)
	AnalyzeVideo(ctx context.Context, prompt, mime string, clip []byte) (string, error)
}

type Sessions interface {
	Register(ctx context.Context, name, email, password string) (session.User, error)
	Login(ctx context.Context, email, password string) (string, session.User, error)
	Current(ctx context.Context, token string) (session.User, error)
	Logout(ctx context.Context, token string) error
}

type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type Gallery interface {
	Save(ctx context.Context, userID string, kind artifact.Kind, mime, prompt string, data []byte) (artifact.Item, error)
	List(ctx context.Context, userID string) ([]artifact.Item, error)
	Load(ctx context.Context, userID, id string) (artifact.Item, []byte, error)
	Delete(ctx context.Context, userID, id string) error
}

type Dependencies struct {
	Studio   Studio
	Sessions Sessions
	Queue    Queue
	Status   StatusStore
	Gallery  Gallery
}

// Server is the HTTP API for the studio.
type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)

	mux.HandleFunc("/api/images/generate", s.requireUser(s.handleGenerateImage))
	mux.HandleFunc("/api/images/edit", s.requireUser(s.handleEditImage))
	mux.HandleFunc("/api/chat", s.requireUser(s.handleChat))
	mux.HandleFunc("/api/videos/generate", s.requireUser(s.handleGenerateVideo))
	mux.HandleFunc("/api/videos/status/", s.requireUser(s.handleVideoStatus))
	mux.HandleFunc("/api/videos/cancel/", s.requireUser(s.handleVideoCancel))
	mux.HandleFunc("/api/videos/analyze", s.requireUser(s.handleAnalyzeVideo))
	mux.HandleFunc("/api/gallery", s.requireUser(s.handleGallery))
	mux.HandleFunc("/api/gallery/", s.requireUser(s.handleGalleryItem))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure logs the detailed error and answers with a generic message.
// Backend and infrastructure detail never reaches the client.
func writeFailure(w http.ResponseWriter, r *http.Request, public string, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": public})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// requireUser resolves the session cookie and passes the user through.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, session.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
			return
		}
		u, err := s.deps.Sessions.Current(r.Context(), c.Value)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
			return
		}
		next(w, r, u)
	}
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req registerReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	u, err := s.deps.Sessions.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrEmailTaken) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
			return
		}
		badRequest(w, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": u.ID, "name": u.Name})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	token, u, err := s.deps.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"user_id": u.ID, "name": u.Name})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		_ = s.deps.Sessions.Logout(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

type imageReq struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

type imageResp struct {
	Image  string `json:"image"`
	ItemID string `json:"item_id,omitempty"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req imageReq
	if err := decode(r, &req); err != nil || req.Prompt == "" {
		badRequest(w, "prompt is required")
		return
	}
	im, err := s.deps.Studio.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		writeFailure(w, r, "image generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, imageResp{Image: im.DataURI(), ItemID: s.saveQuietly(r.Context(), u.ID, artifact.KindImage, im.MIME, req.Prompt, im.Data)})
}

func (s *Server) handleEditImage(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req imageReq
	if err := decode(r, &req); err != nil || req.Prompt == "" {
		badRequest(w, "prompt is required")
		return
	}
	base, err := artifact.ParseDataURI(req.Image)
	if err != nil {
		badRequest(w, "image must be a base64 data URI")
		return
	}
	im, err := s.deps.Studio.EditImage(r.Context(), req.Prompt, base)
	if err != nil {
		writeFailure(w, r, "image edit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, imageResp{Image: im.DataURI(), ItemID: s.saveQuietly(r.Context(), u.ID, artifact.KindImage, im.MIME, req.Prompt, im.Data)})
}

// saveQuietly puts an artifact in the gallery; failures are logged but never
// block the response that already carries the artifact.
func (s *Server) saveQuietly(ctx context.Context, userID string, kind artifact.Kind, mime, prompt string, data []byte) string {
	if s.deps.Gallery == nil {
		return ""
	}
	item, err := s.deps.Gallery.Save(ctx, userID, kind, mime, prompt, data)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("gallery save failed")
		return ""
	}
	return item.ID
}

type chatReq struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	UseSearch      bool   `json:"use_search"`
}

type chatResp struct {
	ConversationID string              `json:"conversation_id"`
	Reply          string              `json:"reply"`
	Citations      []artifact.Citation `json:"citations,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req chatReq
	if err := decode(r, &req); err != nil || req.Message == "" {
		badRequest(w, "message is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	reply, err := s.deps.Studio.Chat(r.Context(), u.ID, req.ConversationID, req.Message, req.UseSearch)
	if err != nil {
		writeFailure(w, r, "chat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, chatResp{ConversationID: req.ConversationID, Reply: reply.Text, Citations: reply.Citations})
}

type videoReq struct {
	Prompt         string `json:"prompt"`
	Frame          string `json:"frame,omitempty"`
	HighFidelity   bool   `json:"high_fidelity"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req videoReq
	if err := decode(r, &req); err != nil || req.Prompt == "" {
		badRequest(w, "prompt is required")
		return
	}
	if req.Frame != "" {
		if _, err := artifact.ParseDataURI(req.Frame); err != nil {
			badRequest(w, "frame must be a base64 data URI")
			return
		}
	}

	jobID := uuid.NewString()
	job := dispatcher.Job{
		ID:             jobID,
		UserID:         u.ID,
		Prompt:         req.Prompt,
		Frame:          req.Frame,
		HighFidelity:   req.HighFidelity,
		IdempotencyKey: req.IdempotencyKey,
	}
	payload, _ := json.Marshal(job)

	now := time.Now()
	if err := s.deps.Status.Set(r.Context(), jobID, store.Status{Status: "queued", Message: "queued", Start: &now}); err != nil {
		writeFailure(w, r, "could not queue job", err)
		return
	}
	if err := s.deps.Queue.Enqueue(r.Context(), payload); err != nil {
		writeFailure(w, r, "could not queue job", err)
		return
	}

	log.Info().Str("job_id", jobID).Str("user_id", u.ID).Bool("high_fidelity", req.HighFidelity).Msg("video job queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "queued"})
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request, u session.User) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/videos/status/")
	if jobID == "" {
		badRequest(w, "missing job id")
		return
	}
	st, found, err := s.deps.Status.Get(r.Context(), jobID)
	if err != nil {
		writeFailure(w, r, "status lookup failed", err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVideoCancel(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/api/videos/cancel/")
	if jobID == "" {
		badRequest(w, "missing job id")
		return
	}
	if err := s.deps.Queue.CancelJob(r.Context(), jobID); err != nil {
		writeFailure(w, r, "cancel failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelling"})
}

type analyzeReq struct {
	Prompt string `json:"prompt"`
	Clip   string `json:"clip"`
}

func (s *Server) handleAnalyzeVideo(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req analyzeReq
	if err := decode(r, &req); err != nil || req.Prompt == "" {
		badRequest(w, "prompt is required")
		return
	}
	clip, err := artifact.ParseDataURI(req.Clip)
	if err != nil {
		badRequest(w, "clip must be a base64 data URI")
		return
	}
	text, err := s.deps.Studio.AnalyzeVideo(r.Context(), req.Prompt, clip.MIME, clip.Data)
	if err != nil {
		writeFailure(w, r, "video analysis failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": text})
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request, u session.User) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.deps.Gallery.List(r.Context(), u.ID)
	if err != nil {
		writeFailure(w, r, "gallery unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGalleryItem(w http.ResponseWriter, r *http.Request, u session.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/gallery/")
	if id == "" {
		badRequest(w, "missing item id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		item, data, err := s.deps.Gallery.Load(r.Context(), u.ID, id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		if item.MIME != "" {
			w.Header().Set("Content-Type", item.MIME)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case http.MethodDelete:
		if err := s.deps.Gallery.Delete(r.Context(), u.ID, id); err != nil {
			writeFailure(w, r, "delete failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
