package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/comfybridge/internal/config"
	"github.com/seantiz/comfybridge/internal/engine"
	"github.com/seantiz/comfybridge/internal/model"
	"github.com/seantiz/comfybridge/internal/store"
	"github.com/seantiz/comfybridge/internal/workflow"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// Render bodies carry base64 PNGs; three 1536x1024 inputs fit well
	// within this.
	maxBodySize = 64 << 20
)

// ActionInfo describes one action on /v1/actions.
type ActionInfo struct {
	Action     string `json:"action"`
	ImageCount int    `json:"image_count"`
	Configured bool   `json:"configured"`
}

// ActionCatalogue builds the /v1/actions payload from the loaded config.
func ActionCatalogue(cfg config.Config) []ActionInfo {
	infos := make([]ActionInfo, 0, len(workflow.Actions))
	for _, a := range workflow.Actions {
		_, err := cfg.WorkflowFor(a)
		infos = append(infos, ActionInfo{
			Action:     string(a),
			ImageCount: a.ImageCount(),
			Configured: err == nil,
		})
	}
	return infos
}

// createRenderRequest is the JSON body for POST /v1/renders. Images and
// mask are base64-encoded PNG bytes.
type createRenderRequest struct {
	Action   string   `json:"action"`
	Prompt   string   `json:"prompt"`
	Images   []string `json:"images"`
	Mask     string   `json:"mask"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Pad      *int     `json:"pad"`
	Seed     *int64   `json:"seed"`
	TimeoutS *int     `json:"timeout_s"`
}

// listRendersResponse wraps the paginated list response.
type listRendersResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.actions)
}

func (s *Server) handleCreateRender(w http.ResponseWriter, r *http.Request) {
	var req createRenderRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	images := make([][]byte, 0, len(req.Images))
	for i, enc := range req.Images {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "images["+strconv.Itoa(i)+"] is not valid base64")
			return
		}
		images = append(images, data)
	}
	var mask []byte
	if req.Mask != "" {
		data, err := base64.StdEncoding.DecodeString(req.Mask)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "mask is not valid base64")
			return
		}
		mask = data
	}

	action := workflow.Action(req.Action)
	if req.Action == "" {
		// Compatibility shim for hosts that only send images.
		inferred, err := workflow.InferAction(len(images))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		action = inferred
	}
	if !action.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown action "+strconv.Quote(req.Action))
		return
	}

	renderReq := engine.RenderRequest{
		Action:   action,
		Prompt:   req.Prompt,
		Images:   images,
		Mask:     mask,
		Width:    req.Width,
		Height:   req.Height,
		Pad:      req.Pad,
		Seed:     req.Seed,
		TimeoutS: req.TimeoutS,
	}

	// Reject misconfigured or malformed requests before a run record is
	// created; the engine re-checks before touching the filesystem.
	if err := s.engine.Validate(renderReq); err != nil {
		switch {
		case errors.Is(err, workflow.ErrCardinality):
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, config.ErrNotConfigured):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	run, err := s.engine.Submit(r.Context(), renderReq)
	if err != nil {
		s.logger.Error("submit render", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit render")
		return
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRenders(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRendersResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetRenderImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run image", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	if run.Status != model.StatusCompleted {
		s.writeError(w, http.StatusConflict, "run is "+run.Status+", not completed")
		return
	}
	if len(run.Output) == 0 {
		s.writeError(w, http.StatusNotFound, "run completed but no artifact is stored")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(run.Output); err != nil {
		s.logger.Error("write run image", "error", err)
	}
}

func (s *Server) handleCancelRender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.engine.Cancel(id) {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
		return
	}

	// Not in flight; report what actually happened to it.
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run for cancel", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	s.writeError(w, http.StatusConflict, "run already "+run.Status)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
