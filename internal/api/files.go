package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/session"
	"stealthcompany.com/labportal/internal/storage"
)

const fileURLExpiry = 15 * time.Minute

// asrFolder loads the ASR and validates the folder query
func (h *Handler) asrFolder(r *http.Request) (*model.Request, *session.Session, string, error) {
	number := mux.Vars(r)["asrNumber"]
	req, s, err := h.loadRequest(r, number)
	if err != nil {
		return nil, nil, "", err
	}
	if req.RequestType != model.RequestTypeASR {
		return nil, nil, "", invalid("%s is not an ASR", number)
	}
	folder, err := storage.ParseFolder(r.URL.Query().Get("folder"))
	if err != nil {
		return nil, nil, "", err
	}
	return req, s, folder, nil
}

// UploadASRFile handles POST /api/asr/{asrNumber}/files?folder. Only lab
// staff may write to the results folder.
func (h *Handler) UploadASRFile(w http.ResponseWriter, r *http.Request) {
	req, s, folder, err := h.asrFolder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if folder == storage.FolderResults && !s.Staff() {
		writeError(w, r, fmt.Errorf("%w: results are uploaded by the lab", ErrForbidden))
		return
	}

	ref, err := h.receiveUpload(w, r, func(fileName string) (string, error) {
		return storage.ASRFileKey(req.RequestNumber, folder, fileName)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if url, err := h.files.URL(r.Context(), ref.Key, fileURLExpiry); err == nil {
		ref.URL = url
	}

	log.Info().Str("asrNumber", req.RequestNumber).Str("folder", folder).Str("key", ref.Key).Str("user", s.Email).Msg("ASR file uploaded")
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": ref})
}

// ListASRFiles handles GET /api/asr/{asrNumber}/files?folder
func (h *Handler) ListASRFiles(w http.ResponseWriter, r *http.Request) {
	req, _, folder, err := h.asrFolder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	refs, err := h.files.List(r.Context(), storage.ASRPrefix(req.RequestNumber, folder))
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range refs {
		url, err := h.files.URL(r.Context(), refs[i].Key, fileURLExpiry)
		if err != nil {
			log.Warn().Err(err).Str("key", refs[i].Key).Msg("Failed to sign file URL")
			continue
		}
		refs[i].URL = url
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": refs, "folder": folder})
}
