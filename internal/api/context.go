package api

import (
	"encoding/json"
	"net/http"

	"github.com/seantiz/comfybridge/internal/geometry"
)

// contextRequest is the JSON body for POST /v1/context. A nil selection
// means the host has no active selection.
type contextRequest struct {
	ImageWidth  int              `json:"image_width"`
	ImageHeight int              `json:"image_height"`
	Mode        string           `json:"mode"`
	Selection   *geometry.Bounds `json:"selection"`
	MaskSize    int              `json:"mask_size"`
}

// contextResponse carries everything the host needs to extract pixels and,
// later, composite the result back.
type contextResponse struct {
	Context   geometry.ContextInfo `json:"context"`
	Placement geometry.Placement   `json:"placement"`
	Mask      *geometry.MaskCoords `json:"mask,omitempty"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		s.writeError(w, http.StatusBadRequest, "image_width and image_height must be positive")
		return
	}
	if req.Selection != nil && !req.Selection.WellOrdered() {
		s.writeError(w, http.StatusBadRequest, "selection must satisfy x2 > x1 and y2 > y1")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = geometry.ModeFocused
	}
	if mode != geometry.ModeFull && mode != geometry.ModeFocused {
		s.writeError(w, http.StatusBadRequest, "mode must be \"full\" or \"focused\"")
		return
	}

	info := s.engine.PrepareContext(req.ImageWidth, req.ImageHeight, req.Selection, mode)

	resp := contextResponse{
		Context:   info,
		Placement: geometry.PlacementFor(info),
	}
	if req.MaskSize > 0 {
		mc := geometry.MaskCoordinates(info, req.MaskSize)
		resp.Mask = &mc
	}

	s.writeJSON(w, http.StatusOK, resp)
}
