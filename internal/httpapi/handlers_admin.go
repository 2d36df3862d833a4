package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/authcore/internal/mirror"
	"github.com/example/authcore/internal/models"
)

const (
	maxImportBytes = 10 << 20
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type createUserRequest struct {
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Email     string        `json:"email"`
	Password  string        `json:"password"`
	Role      models.Role   `json:"role"`
	Status    models.Status `json:"status"`
}

type updateUserRequest struct {
	FirstName *string        `json:"firstName"`
	LastName  *string        `json:"lastName"`
	Email     *string        `json:"email"`
	Password  *string        `json:"password"`
	Role      *models.Role   `json:"role"`
	Status    *models.Status `json:"status"`
}

type importFailure struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

type importResponse struct {
	Created  int             `json:"created"`
	Skipped  int             `json:"skipped"`
	Failures []importFailure `json:"failures"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.creds.ListAll(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]models.User, len(users))
	for i, u := range users {
		out[i] = u.Redacted()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": out})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	id, err := s.creds.Create(r.Context(), models.NewUser{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
		Role:      in.Role,
		Status:    in.Status,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	u, err := s.creds.FindByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": u.Redacted()})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid user id")
		return
	}
	var in updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	upd := models.UserUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
		Role:      in.Role,
		Status:    in.Status,
	}
	if upd.Empty() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No fields to update")
		return
	}

	ok, err := s.creds.Update(r.Context(), id, upd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	u, err := s.creds.FindByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u.Redacted()})
}

func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.mirror.Export(r.Context(), &buf)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	name := fmt.Sprintf("users-%s.xlsx", s.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.WarnContext(r.Context(), "export write", "error", err)
	}
}

// handleImportUsers accepts either a raw xlsx body or a multipart form with
// a "file" field.
func (s *Server) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing workbook file")
			return
		}
		defer f.Close()
		src = f
	}

	records, err := mirror.ReadWorkbook(src)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_WORKBOOK", err.Error())
		return
	}

	start := time.Now()
	rep, err := s.mirror.Reconcile(r.Context(), records)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "workbook imported",
		"created", rep.Created, "skipped", rep.Skipped, "failed", len(rep.Failures), "took", time.Since(start))

	out := importResponse{Created: rep.Created, Skipped: rep.Skipped, Failures: []importFailure{}}
	for _, f := range rep.Failures {
		out.Failures = append(out.Failures, importFailure{Row: f.Row, Email: f.Email, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, out)
}
