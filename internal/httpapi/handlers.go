package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/freightdesk/shipledger/internal/auth"
	"github.com/freightdesk/shipledger/internal/extraction"
	"github.com/freightdesk/shipledger/internal/filestore"
	"github.com/freightdesk/shipledger/ledger"
	"github.com/freightdesk/shipledger/validation"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type appendEventRequest struct {
	EventType string          `json:"event_type"`
	Snapshot  ledger.Snapshot `json:"snapshot"`
	Reason    string          `json:"reason,omitempty"`
	Metadata  ledger.Metadata `json:"metadata,omitempty"`
}

type versionResponse struct {
	EntityID  string `json:"entity_id"`
	VersionNo int    `json:"version_no"`
}

type restoreRequest struct {
	VersionNo int    `json:"version_no"`
	Reason    string `json:"reason,omitempty"`
}

type extractResponse struct {
	Fields   ledger.Snapshot    `json:"fields"`
	Files    []string           `json:"files"`
	Warnings []ledger.Violation `json:"warnings,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	token, identity, err := s.authenticator.Authenticate(req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid email or password"})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  userResponse{ID: identity.ID, Email: identity.Email, Name: identity.Name},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: identity.ID, Email: identity.Email, Name: identity.Name})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	entityID := r.PathValue("id")

	options := make([]ledger.EventOption, 0, 2)
	if req.Reason != "" {
		options = append(options, ledger.WithReason(req.Reason))
	}
	if len(req.Metadata) > 0 {
		options = append(options, ledger.WithMetadata(req.Metadata))
	}

	event := ledger.BuildEvent(
		entityID,
		ledger.EventType(req.EventType),
		identity.ID,
		identity.Name,
		req.Snapshot,
		options...,
	)

	versionNo, err := s.appender.Append(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, versionResponse{EntityID: entityID, VersionNo: versionNo})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", ledger.DefaultFilterLimit)
	offset := queryInt(r, "offset", 0)

	entries, err := s.history.History(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	versionNo, err := strconv.Atoi(r.PathValue("no"))
	if err != nil || versionNo < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "version number must be a positive integer"})
		return
	}

	entry, err := s.history.Version(r.Context(), r.PathValue("id"), versionNo)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleFilterEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.history.Filter(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	entityID := r.PathValue("id")

	versionNo, err := s.restorer.Restore(r.Context(), entityID, req.VersionNo, identity.ID, identity.Name, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, versionResponse{EntityID: entityID, VersionNo: versionNo})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "extraction is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart request"})
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "at least one file is required"})
		return
	}

	documents := make([]extraction.Document, 0, len(fileHeaders))
	storedNames := make([]string, 0, len(fileHeaders))

	for _, header := range fileHeaders {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable file upload"})
			return
		}

		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable file upload"})
			return
		}

		storedName, err := s.files.Save(data, header.Filename)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		documents = append(documents, extraction.Document{Name: header.Filename, Data: data})
		storedNames = append(storedNames, storedName)
	}

	text, err := extraction.ExtractText(documents)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	fields, err := s.extractor.ExtractFields(r.Context(), text)
	if err != nil {
		s.logger.Error("field extraction failed", "error", err.Error())
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "field extraction failed"})
		return
	}

	warnings := validation.NewValidator(validation.CollectAll).Validate(fields)

	writeJSON(w, http.StatusOK, extractResponse{
		Fields:   fields,
		Files:    storedNames,
		Warnings: warnings,
	})
}

// handleDownload serves a stored upload back to the client. Stored
// names are the ones returned by the extract endpoint.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	storedName := r.PathValue("name")

	data, err := s.files.Read(storedName)
	if err != nil {
		switch {
		case errors.Is(err, filestore.ErrInvalidName):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid file name"})
		case errors.Is(err, os.ErrNotExist):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "file not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reading file failed"})
		}
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(storedName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Stored names are "<uuid>_<original name>"; hand the original name
	// back for the download prompt.
	if _, originalName, found := strings.Cut(storedName, "_"); found && originalName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", originalName))
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}

// filterFromQuery parses the filter query parameters. Timestamps are
// RFC 3339.
func filterFromQuery(r *http.Request) (ledger.HistoryFilter, error) {
	query := r.URL.Query()

	filter := ledger.HistoryFilter{
		ActorID:      query.Get("actor_id"),
		EventType:    ledger.EventType(query.Get("event_type")),
		ChangedField: query.Get("changed_field"),
		Limit:        queryInt(r, "limit", 0),
	}

	for _, bound := range []struct {
		name   string
		target *time.Time
	}{
		{"from", &filter.OccurredFrom},
		{"until", &filter.OccurredUntil},
	} {
		raw := query.Get(bound.name)
		if raw == "" {
			continue
		}

		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.HistoryFilter{}, ledger.NewValidationError(ledger.Violation{
				Field:   bound.name,
				Rule:    "format",
				Message: fmt.Sprintf("%s must be an RFC 3339 timestamp", bound.name),
			})
		}

		*bound.target = parsed
	}

	return filter, nil
}
