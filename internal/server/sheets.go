package server

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"catalogpanel/internal/app"
	"catalogpanel/internal/stafftoken"
)

// /api/sheets
func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	switch r.Method {
	case http.MethodGet:
		page, err := s.app.ListSheets(r.Context(), app.SheetQuery{
			Search:  r.URL.Query().Get("q"),
			Page:    queryInt(r, "page"),
			PerPage: queryInt(r, "perPage"),
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		s.handleUploadSheet(w, r, staff)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleUploadSheet(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	if !s.allowRate(w, r, "catalog.sheet.upload") {
		return
	}
	form, err := s.parseMultipart(w, r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	files, closeFiles, err := openUploads(form, "file")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer closeFiles()
	if len(files) != 1 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "exactly one file is required (field: file)")
		return
	}
	file, err := s.app.UploadSheet(r.Context(), files[0])
	if err != nil {
		s.audit(r, "catalog.sheet.upload", "fail", "user_id", staff.ID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.sheet.upload", "success", "user_id", staff.ID, "sheet", file.Name)
	writeJSON(w, http.StatusCreated, file)
}

// /api/sheets/{name}, /api/sheets/{name}/preview|download|share
func (s *Server) handleSheetByName(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sheets/")
	name, action, _ := strings.Cut(rest, "/")
	if name == "" || strings.Contains(action, "/") {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r)
			return
		}
		if err := s.app.DeleteSheet(r.Context(), name); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "catalog.sheet.delete", "success", "user_id", staff.ID, "sheet", name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case "preview":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		preview, err := s.app.PreviewSheet(r.Context(), name)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	case "download":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		s.handleDownloadSheet(w, r, name)
	case "share":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		link, err := s.app.ShareSheet(name)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDownloadSheet(w http.ResponseWriter, r *http.Request, name string) {
	rc, file, err := s.app.OpenSheet(r.Context(), name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(file.Name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.DisplayName}))
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.audit(r, "catalog.sheet.download", "fail", "sheet", name, "reason", err.Error())
	}
}

// /api/preview?url=
func (s *Server) handlePreviewURL(w http.ResponseWriter, r *http.Request, _ stafftoken.Staff) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	preview, err := s.app.PreviewURL(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
