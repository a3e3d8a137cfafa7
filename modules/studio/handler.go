package studio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/model"
	"portfolio-studio-server/modules/common/registry"
)

// maxUploadBytes - multipart input limit
const maxUploadBytes = 20 << 20

// Handler - HTTP surface of the studio
type Handler struct {
	manager  *Manager
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler - allowedOrigin "*" accepts websocket upgrades from any origin
func NewHandler(manager *Manager, allowedOrigin string, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		log: log,
	}
}

// Register - mount the studio routes
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/studio").Subrouter()

	api.HandleFunc("/projects", h.listProjects).Methods("GET")
	api.HandleFunc("/encode", h.encode).Methods("POST")

	api.HandleFunc("/modals", h.listModals).Methods("GET")
	api.HandleFunc("/modals", h.openModal).Methods("POST")
	api.HandleFunc("/modals/{id}", h.getModal).Methods("GET")
	api.HandleFunc("/modals/{id}", h.closeModal).Methods("DELETE")
	api.HandleFunc("/modals/{id}/input", h.setInput).Methods("POST")
	api.HandleFunc("/modals/{id}/submit", h.submit).Methods("POST")
	api.HandleFunc("/modals/{id}/accept", h.accept).Methods("POST")
	api.HandleFunc("/modals/{id}/discard", h.discard).Methods("POST")
	api.HandleFunc("/modals/{id}/reset", h.reset).Methods("POST")
	api.HandleFunc("/modals/{id}/result", h.result).Methods("GET")
	api.HandleFunc("/modals/{id}/ws", h.handleWebSocket)

	api.HandleFunc("/assets", h.listAssets).Methods("GET")
	api.HandleFunc("/assets/{projectId}", h.getAsset).Methods("GET")
	api.HandleFunc("/assets/{projectId}/raw", h.getAssetRaw).Methods("GET")
	api.HandleFunc("/assets/{projectId}", h.deleteAsset).Methods("DELETE")
}

type openModalRequest struct {
	ProjectID string        `json:"project_id"`
	Kind      model.JobKind `json:"kind"`
}

// inputRequest - JSON body of /input and /encode
type inputRequest struct {
	ImageURL    string `json:"image_url"`
	DataURI     string `json:"data_uri"`
	MimeType    string `json:"mime_type"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

func (in inputRequest) asset() model.Asset {
	switch {
	case in.DataURI != "":
		return model.DataURIAsset(in.DataURI)
	case in.ImageURL != "":
		return model.URLAsset(in.ImageURL, in.MimeType)
	}
	return model.Asset{}
}

// EntryView - registry entry without the bytes
type EntryView struct {
	ProjectID  string    `json:"projectId"`
	JobID      string    `json:"jobId,omitempty"`
	MimeType   string    `json:"mimeType"`
	Size       int       `json:"size"`
	PublicPath string    `json:"publicPath,omitempty"`
	AssetURL   string    `json:"assetUrl"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

func entryView(e registry.Entry) EntryView {
	return EntryView{
		ProjectID:  e.ProjectID,
		JobID:      e.JobID,
		MimeType:   e.Asset.MimeType,
		Size:       len(e.Asset.Data),
		PublicPath: e.PublicPath,
		AssetURL:   fmt.Sprintf("/api/studio/assets/%s/raw", url.PathEscape(e.ProjectID)),
		AcceptedAt: e.AcceptedAt,
	}
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects": h.manager.Catalogue().Projects(),
	})
}

// encode - exposes the media encoder on its own
func (h *Handler) encode(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload, err := h.manager.deps.Encoder.Encode(r.Context(), req.asset())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"mimeType": payload.MimeType,
		"data":     payload.Data,
	})
}

func (h *Handler) listModals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modals": h.manager.Views(),
	})
}

func (h *Handler) openModal(w http.ResponseWriter, r *http.Request) {
	var req openModalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	modal, err := h.manager.Open(req.ProjectID, req.Kind)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, modal.View())
}

func (h *Handler) getModal(w http.ResponseWriter, r *http.Request) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, modal.View())
}

func (h *Handler) closeModal(w http.ResponseWriter, r *http.Request) {
	if !h.manager.CloseModal(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "modal not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setInput - JSON {image_url|data_uri} or multipart "file" upload
func (h *Handler) setInput(w http.ResponseWriter, r *http.Request) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}

	var in Input
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil || len(data) > maxUploadBytes {
			writeError(w, http.StatusBadRequest, "upload too large or unreadable")
			return
		}
		in = Input{
			Asset:       model.UploadAsset(data, header.Header.Get("Content-Type")),
			Prompt:      r.FormValue("prompt"),
			AspectRatio: r.FormValue("aspect_ratio"),
		}
	} else {
		var req inputRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in = Input{Asset: req.asset(), Prompt: req.Prompt, AspectRatio: req.AspectRatio}
	}

	if err := modal.SetInput(in); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modal.View())
}

// submit - image edits answer when done; video jobs answer 202 while polling
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}
	if err := modal.Submit(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	view := modal.View()
	status := http.StatusOK
	if view.Phase == PhasePolling || view.Phase == PhaseSubmitting {
		status = http.StatusAccepted
	}
	writeJSON(w, status, view)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}
	entry, err := modal.Accept(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry": entryView(entry),
		"modal": modal.View(),
	})
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Modal).Discard)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Modal).Reset)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action func(*Modal) error) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}
	if err := action(modal); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modal.View())
}

// result - raw bytes of the succeeded job
func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}
	asset, ok := modal.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "no result available")
		return
	}
	writeAsset(w, asset)
}

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	ids, err := h.manager.deps.Registry.List(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projectIds": ids,
	})
}

func (h *Handler) getAsset(w http.ResponseWriter, r *http.Request) {
	entry, err := h.manager.deps.Registry.Get(r.Context(), mux.Vars(r)["projectId"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryView(entry))
}

func (h *Handler) getAssetRaw(w http.ResponseWriter, r *http.Request) {
	entry, err := h.manager.deps.Registry.Get(r.Context(), mux.Vars(r)["projectId"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeAsset(w, entry.Asset)
}

func (h *Handler) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.deps.Registry.Delete(r.Context(), mux.Vars(r)["projectId"]); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) modal(w http.ResponseWriter, r *http.Request) (*Modal, bool) {
	modal, ok := h.manager.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "modal not found")
		return nil, false
	}
	return modal, true
}

// writeFailure - error taxonomy to HTTP status
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var inputErr *model.InputError
	var transportErr *model.TransportError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &inputErr):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrClosed):
		status = http.StatusGone
	case errors.Is(err, ErrBusy), errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	case errors.As(err, &transportErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("❌ [Studio] Request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeAsset(w http.ResponseWriter, asset model.Asset) {
	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(asset.Data)
}
