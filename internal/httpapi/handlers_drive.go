package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
	"shogunrelay/internal/ledger"
)

// requireDriveCapability is the admin-or-api-key gate every drive route
// shares (spec §6.1: "admin or api-key").
func (s *Server) requireDriveCapability(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p := principalFrom(r)
	if p.Variant != auth.VariantAdmin && p.Variant != auth.VariantApiKey {
		writeError(w, errs.New(errs.Forbidden, "drive-requires-admin-or-apikey", "drive access requires admin or api-key authentication"), nil, "")
		return auth.Principal{}, false
	}
	return p, true
}

func driveWildcard(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (s *Server) handleDriveList(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	entries, err := s.storage.List(r.Context(), driveWildcard(r))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"entries": entries})
}

func (s *Server) handleDriveUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errs.Wrap(errs.Malformed, "missing-file", "multipart field \"file\" is required", err), nil, "")
		return
	}
	defer file.Close()

	path := driveWildcard(r)
	res, err := s.storage.Write(r.Context(), path, file, header.Size, partContentType(header))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusCreated, envelope{"path": path, "sizeBytes": res.SizeBytes})
}

func (s *Server) handleDriveDownload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	rr, err := s.storage.Read(r.Context(), driveWildcard(r))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	defer rr.Stream.Close()
	w.Header().Set("Content-Type", rr.ContentType)
	io.Copy(w, rr.Stream)
}

func (s *Server) handleDriveDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	recursive := r.URL.Query().Get("recursive") == "true"
	if err := s.storage.Delete(r.Context(), driveWildcard(r), recursive); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{})
}

func (s *Server) handleDriveMkdir(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	if err := s.storage.Mkdir(r.Context(), driveWildcard(r)); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusCreated, envelope{})
}

func (s *Server) handleDriveRename(w http.ResponseWriter, r *http.Request) {
	s.handleDriveMoveOrRename(w, r)
}

func (s *Server) handleDriveMove(w http.ResponseWriter, r *http.Request) {
	s.handleDriveMoveOrRename(w, r)
}

func (s *Server) handleDriveMoveOrRename(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	var req struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}
	if err := s.storage.Move(r.Context(), req.Src, req.Dst); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"src": req.Src, "dst": req.Dst})
}

func (s *Server) handleDriveStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireDriveCapability(w, r); !ok {
		return
	}
	stats, err := s.storage.Stats(r.Context(), driveWildcard(r))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"stats": stats})
}

// handleLinkCreate implements POST /api/v1/drive/links (admin only, spec
// §6.1's public-link CRUD).
func (s *Server) handleLinkCreate(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantAdmin {
		writeError(w, errs.New(errs.Forbidden, "links-admin-only", "public link management requires admin auth"), nil, "")
		return
	}

	var req struct {
		FilePath  string `json:"filePath"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}

	pl := &ledger.PublicLink{
		LinkID:    uuid.New().String(),
		FilePath:  req.FilePath,
		CreatedAt: nowUnix(),
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.ledger.PutPublicLink(pl); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusCreated, envelope{"link": pl})
}

func (s *Server) handleLinkList(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantAdmin {
		writeError(w, errs.New(errs.Forbidden, "links-admin-only", "public link management requires admin auth"), nil, "")
		return
	}
	links, err := s.ledger.ListPublicLinks()
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"links": links})
}

func (s *Server) handleLinkDelete(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantAdmin {
		writeError(w, errs.New(errs.Forbidden, "links-admin-only", "public link management requires admin auth"), nil, "")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.ledger.DeletePublicLink(id); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{})
}

// handlePublicLink implements GET /api/v1/drive/public/{linkId} (public).
func (s *Server) handlePublicLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "linkId")
	pl, err := s.ledger.GetPublicLink(id)
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	if pl == nil || pl.Revoked {
		writeError(w, errs.New(errs.NotFound, "link-not-found", "public link does not exist"), nil, "")
		return
	}
	if pl.ExpiresAt != 0 && nowUnix() > pl.ExpiresAt {
		writeError(w, errs.New(errs.NotFound, "link-expired", "public link has expired"), nil, "")
		return
	}

	rr, err := s.storage.Read(r.Context(), pl.FilePath)
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	defer rr.Stream.Close()

	pl.AccessCount++
	pl.LastAccessedAt = nowUnix()
	_ = s.ledger.PutPublicLink(pl)

	w.Header().Set("Content-Type", rr.ContentType)
	io.Copy(w, rr.Stream)
}
