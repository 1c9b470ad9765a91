package httpapi

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
	"shogunrelay/internal/pipeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	live, err := s.ledger.TotalLiveBytes()
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	capBytes := s.gov.RelayCapBytes()
	capUsage := 0.0
	if capBytes > 0 {
		capUsage = float64(live+s.gov.TotalReserved()) / float64(capBytes)
	}
	writeOK(w, http.StatusOK, envelope{
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"liveBytes":     live,
		"capBytes":      capBytes,
		"capUsage":      capUsage,
	})
}

// handleUpload implements POST /api/v1/ipfs/upload (spec §4.5, §6.1).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errs.Wrap(errs.Malformed, "missing-file", "multipart field \"file\" is required", err), nil, "")
		return
	}
	defer file.Close()

	contentType := partContentType(header)
	res, err := s.pipe.Upload(r.Context(), pipeline.UploadRequest{
		Principal:     p,
		Reader:        file,
		ContentLength: header.Size,
		Filename:      header.Filename,
		ContentType:   contentType,
		DealUpload:    isDealUpload(r),
	})
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	writeOK(w, http.StatusCreated, envelope{
		"file": envelope{
			"size":     res.SizeBytes,
			"mimetype": res.ContentType,
			"hash":     res.CID,
		},
		"dedup":               res.Dedup,
		"concurrentDuplicate": res.ConcurrentDuplicate,
		"authType":            string(p.Variant),
	})
}

// handleUploadDirectory implements POST /api/v1/ipfs/upload-directory:
// every multipart file part is uploaded independently, preserving the
// part's form field name as its relative path (spec §6.1: "preserves
// relative paths").
func (s *Server) handleUploadDirectory(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, "multipart-parse", "failed to parse multipart form", err), nil, "")
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		writeError(w, errs.New(errs.Malformed, "missing-files", "no files found in multipart form"), nil, "")
		return
	}

	type uploaded struct {
		Path string `json:"path"`
		CID  string `json:"hash"`
		Size int64  `json:"size"`
	}
	var results []uploaded
	dealUpload := isDealUpload(r)

	for relPath, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				writeError(w, errs.Wrap(errs.Malformed, "multipart-open", "failed to open uploaded part", err), nil, "")
				return
			}
			res, err := s.pipe.Upload(r.Context(), pipeline.UploadRequest{
				Principal:     p,
				Reader:        f,
				ContentLength: header.Size,
				Filename:      filepath.Base(relPath),
				ContentType:   partContentType(header),
				DealUpload:    dealUpload,
			})
			f.Close()
			if err != nil {
				s.writeUploadError(w, err)
				return
			}
			results = append(results, uploaded{Path: relPath, CID: res.CID, Size: res.SizeBytes})
		}
	}

	writeOK(w, http.StatusCreated, envelope{"files": results, "authType": string(p.Variant)})
}

// writeUploadError releases no additional state itself (the pipeline
// already released its reservation on every exit path, spec §8's
// "Reservation release" property); it attaches the tier catalog to a
// PaymentRequired response per spec §7.
func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	if errs.KindOf(err) == errs.PaymentRequired {
		live, lerr := s.ledger.TotalLiveBytes()
		if lerr == nil {
			tiers, _ := s.subs.ListTiers(live)
			writeError(w, err, tiers, "")
			return
		}
	}
	writeError(w, err, nil, "")
}

func partContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(header.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// handleCat implements GET /api/v1/ipfs/cat/{cid}[/{subpath}] (spec §6.1:
// "Stream content; supports range").
func (s *Server) handleCat(w http.ResponseWriter, r *http.Request) {
	cidStr := chi.URLParam(r, "cid")
	subpath := strings.TrimPrefix(chi.URLParam(r, "*"), "/")

	stream, err := s.ipfs.Cat(r.Context(), cidStr, subpath, r.Header.Get("Range"))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, stream)
}

// handlePinAdd implements POST /api/v1/ipfs/pin/add (admin or api-key).
func (s *Server) handlePinAdd(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if !p.Can(auth.CapPinManage) {
		writeError(w, errs.New(errs.Forbidden, "no-pin-capability", "principal lacks pin-manage capability"), nil, "")
		return
	}

	var req struct {
		CID string `json:"cid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}
	if req.CID == "" {
		writeError(w, errs.New(errs.Malformed, "missing-cid", "cid is required"), nil, "")
		return
	}

	if err := s.ipfs.Pin(r.Context(), req.CID, 0); err != nil {
		writeError(w, err, nil, "")
		return
	}
	if _, err := s.ledger.IncrPinRef(req.CID); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"cid": req.CID})
}

