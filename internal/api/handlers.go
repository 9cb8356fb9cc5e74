package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/worker"
)

// minContentChars is the shortest inline content accepted at ingestion
const minContentChars = 10

const clientIDHeader = "X-Client-ID"

var (
	errNoFile   = errors.New("no file uploaded")
	errTooLarge = errors.New("upload too large")
)

type jobResponse struct {
	JobID   string       `json:"job_id"`
	Status  model.Status `json:"status"`
	Message string       `json:"message"`
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.store.HealthCheck(r.Context())

	status, store := "healthy", "connected"
	if !connected {
		status, store = "degraded", "disconnected"
	} else if s.store.Degraded() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"store":   store,
		"backend": s.store.Backend(),
	})
}

// ---------------------------------------------------------------------------
// POST /ingest
// ---------------------------------------------------------------------------

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	inputType, ok := model.ParseInputType(r.FormValue("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid type: must be one of video, text, url, pdf, txt")
		return
	}

	jobID := uuid.NewString()
	clientID := strings.TrimSpace(r.Header.Get(clientIDHeader))

	var raw string
	if inputType.IsFileBased() {
		path, err := s.saveUpload(r, jobID)
		switch {
		case errors.Is(err, errNoFile):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file required for type: %s", inputType))
			return
		case errors.Is(err, errTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		case err != nil:
			s.internalError(w, "failed to save upload", err)
			return
		}
		raw = path
	} else {
		content, err := s.inlineContent(r, inputType)
		switch {
		case errors.Is(err, errTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		case err != nil:
			s.internalError(w, "failed to read upload", err)
			return
		}
		if content == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("content required for type: %s", inputType))
			return
		}
		if len(content) < minContentChars {
			writeError(w, http.StatusBadRequest, "content too short")
			return
		}
		raw = content
	}

	if err := s.store.Initialize(r.Context(), jobID, inputType, raw, clientID); err != nil {
		s.internalError(w, "failed to create job", err)
		return
	}
	s.logger.Info("job ingested",
		zap.String("job_id", jobID),
		zap.String("type", string(inputType)),
		zap.String("client_id", clientID))

	writeJSON(w, http.StatusOK, jobResponse{
		JobID:   jobID,
		Status:  model.StatusIngested,
		Message: "Job created successfully",
	})
}

// parseForm accepts multipart and urlencoded bodies
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(32 << 20)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}

// saveUpload writes the "file" part to <upload_dir>/<job_id><ext>
func (s *Server) saveUpload(r *http.Request, jobID string) (string, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", errNoFile
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	if s.cfg.MaxUploadBytes > 0 && header.Size > s.cfg.MaxUploadBytes {
		return "", errTooLarge
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, jobID+filepath.Ext(header.Filename))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, out.Close()
}

// inlineContent returns the form content, or for txt an uploaded file read in full
func (s *Server) inlineContent(r *http.Request, inputType model.InputType) (string, error) {
	if inputType == model.InputTxt {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer func() { _ = file.Close() }()
			if s.cfg.MaxUploadBytes > 0 && header.Size > s.cfg.MaxUploadBytes {
				return "", errTooLarge
			}
			data, err := io.ReadAll(file)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(data)), nil
		}
	}
	return strings.TrimSpace(r.FormValue("content")), nil
}

// ---------------------------------------------------------------------------
// POST /process
// ---------------------------------------------------------------------------

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	info, found, err := s.store.GetStatus(r.Context(), jobID)
	if err != nil {
		s.internalError(w, "failed to get job status", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !info.Status.Runnable() {
		writeJSON(w, http.StatusOK, jobResponse{
			JobID:   jobID,
			Status:  info.Status,
			Message: "Job already processing or complete",
		})
		return
	}

	if !s.submit(w, jobID) {
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{
		JobID:   jobID,
		Status:  model.StatusProcessing,
		Message: "Pipeline started",
	})
}

// submit queues a pipeline run; it answers the request itself on failure
func (s *Server) submit(w http.ResponseWriter, jobID string) bool {
	err := s.pool.TrySubmit(&worker.RunJob{JobID: jobID, Runner: s.runner})
	switch {
	case err == nil:
		return true
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolClosed):
		s.logger.Warn("job not queued", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "worker queue is full, retry later")
	default:
		s.internalError(w, "failed to start pipeline", err)
	}
	return false
}

// ---------------------------------------------------------------------------
// GET /status
// ---------------------------------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	info, found, err := s.store.GetStatus(r.Context(), jobID)
	if err != nil {
		s.internalError(w, "failed to get job status", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{JobID: jobID, Status: info.Status, Message: info.Message})
}

// ---------------------------------------------------------------------------
// GET /result
// ---------------------------------------------------------------------------

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	info, found, err := s.store.GetStatus(r.Context(), jobID)
	if err != nil {
		s.internalError(w, "failed to get job status", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if info.Status != model.StatusReady {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job not ready, current status: %s", info.Status))
		return
	}

	var result model.Result
	found, err = s.store.GetData(r.Context(), jobID, jobstore.KeyFinalResult, &result)
	if err != nil {
		s.internalError(w, "failed to read result", err)
		return
	}
	if !found {
		writeError(w, http.StatusInternalServerError, "result not found despite READY status")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// GET /settings, POST /settings
// ---------------------------------------------------------------------------

type settingsRequest struct {
	GeminiEnabled *bool  `json:"gemini_enabled"`
	DemoMode      string `json:"demo_mode"`
}

type settingsResponse struct {
	GeminiEnabled bool           `json:"gemini_enabled"`
	DemoMode      model.DemoMode `json:"demo_mode"`
	ClientID      string         `json:"client_id"`
}

// clientSettings returns stored settings or the defaults
func (s *Server) clientSettings(r *http.Request, clientID string) (model.ClientSettings, error) {
	settings, found, err := s.store.GetSettings(r.Context(), clientID)
	if err != nil {
		return settings, err
	}
	if !found {
		settings = model.ClientSettings{PrimaryScoringEnabled: s.primaryDefault, DemoMode: model.DemoModeCached}
	}
	return settings, nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.Header.Get(clientIDHeader))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "X-Client-ID header required")
		return
	}

	settings, err := s.clientSettings(r, clientID)
	if err != nil {
		s.internalError(w, "failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		GeminiEnabled: settings.PrimaryScoringEnabled,
		DemoMode:      settings.DemoMode,
		ClientID:      clientID,
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.Header.Get(clientIDHeader))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "X-Client-ID header required")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	settings, err := s.clientSettings(r, clientID)
	if err != nil {
		s.internalError(w, "failed to get settings", err)
		return
	}
	if req.GeminiEnabled != nil {
		settings.PrimaryScoringEnabled = *req.GeminiEnabled
	}
	switch mode := model.DemoMode(strings.ToLower(req.DemoMode)); mode {
	case "":
	case model.DemoModeCached, model.DemoModeLive:
		settings.DemoMode = mode
	default:
		writeError(w, http.StatusBadRequest, "demo_mode must be cached or live")
		return
	}

	if err := s.store.SetSettings(r.Context(), clientID, settings); err != nil {
		s.internalError(w, "failed to update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		GeminiEnabled: settings.PrimaryScoringEnabled,
		DemoMode:      settings.DemoMode,
		ClientID:      clientID,
	})
}

// ---------------------------------------------------------------------------
// POST /live
// ---------------------------------------------------------------------------

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.Header.Get(clientIDHeader))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "X-Client-ID header required")
		return
	}
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	if len(text) < minContentChars {
		writeError(w, http.StatusBadRequest, "text is required (at least 10 characters)")
		return
	}

	jobID, err := s.liveJobID(r)
	if err != nil {
		s.internalError(w, "failed to create job", err)
		return
	}
	if err := s.store.Initialize(r.Context(), jobID, model.InputText, text, clientID); err != nil {
		s.internalError(w, "failed to create job", err)
		return
	}
	if !s.submit(w, jobID) {
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		JobID:   jobID,
		Status:  model.StatusProcessing,
		Message: "Pipeline started with live providers",
	})
}

// liveJobID is live_<UTC timestamp>, suffixed when two requests share a second
func (s *Server) liveJobID(r *http.Request) (string, error) {
	jobID := "live_" + s.now().UTC().Format("20060102_150405")
	_, taken, err := s.store.GetStatus(r.Context(), jobID)
	if err != nil {
		return "", err
	}
	if taken {
		jobID += "_" + uuid.NewString()[:8]
	}
	return jobID, nil
}

// ---------------------------------------------------------------------------
// DELETE /jobs/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !jobstore.ValidJobID(jobID) {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	s.removeUpload(r, jobID)
	n, err := s.store.Purge(r.Context(), jobID)
	if err != nil {
		s.internalError(w, "failed to delete job", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Info("job purged", zap.String("job_id", jobID), zap.Int("keys", n))
	w.WriteHeader(http.StatusNoContent)
}

// removeUpload deletes the stored file of a pdf or video job
func (s *Server) removeUpload(r *http.Request, jobID string) {
	values, err := s.store.GetMany(r.Context(), jobID, []string{jobstore.KeyType, jobstore.KeyRaw})
	if err != nil {
		return
	}
	if !model.InputType(values[jobstore.KeyType].String()).IsFileBased() {
		return
	}
	path := values[jobstore.KeyRaw].String()
	if filepath.Dir(path) != filepath.Clean(s.cfg.UploadDir) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove upload", zap.String("job_id", jobID), zap.Error(err))
	}
}
