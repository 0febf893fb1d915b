package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/milesdash/internal/core"
	"github.com/JonMunkholm/milesdash/internal/web/templates"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling to temp files.
	multipartMemory = 4 << 20

	// multipartOverhead allows for boundaries and headers around the file.
	multipartOverhead = 1 << 20
)

// handleDashboard renders the dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, r.URL.Query().Get("tab"))
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, tab string) {
	st := s.service.Snapshot()
	data := templates.DashboardData{
		State:       st,
		Tab:         tab,
		MaxFileSize: s.cfg.Upload.MaxFileSize,
	}
	if st.Err != nil {
		msg := core.MapError(st.Err)
		data.Alert = &msg
	}
	if st.HasData() {
		data.Overview = core.Overview(st.Dataset)
		if tab == templates.TabPerson && st.Selected != "" {
			if v, err := s.views.get(st, ""); err == nil {
				data.Person = v
			}
		}
	}

	if isHTMX(r) {
		renderHTML(w, r, http.StatusOK, templates.Dashboard(data))
		return
	}
	renderHTML(w, r, http.StatusOK, templates.Page("Mileage Dashboard", templates.Dashboard(data)))
}

// afterMutation finishes a form post: HTMX gets the refreshed dashboard,
// browsers are redirected to it.
func (s *Server) afterMutation(w http.ResponseWriter, r *http.Request, tab string) {
	if isHTMX(r) {
		s.renderDashboard(w, r, tab)
		return
	}
	target := "/"
	if tab != "" {
		target = "/?tab=" + tab
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// upload reads the multipart "file" field into the service.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (core.State, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return s.service.Snapshot(), fmt.Errorf("parse upload form: %w", core.ErrFileTooLarge)
		}
		return s.service.Snapshot(), fmt.Errorf("parse upload form: %w", errNoFile)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return s.service.Snapshot(), errNoFile
	}
	defer file.Close()

	ctx := withClient(r.Context(), r)
	st, err := s.service.Upload(ctx, header.Filename, file)
	if err == nil {
		s.views.purge()
	}
	return st, err
}

// stateError reports whether err is already visible in the dashboard state,
// so a form post can just redirect.
func stateError(err error) bool {
	var verr *core.ValidationError
	return errors.As(err, &verr) || errors.Is(err, core.ErrStaleUpload)
}

// handleUploadForm handles the dashboard's file input.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.upload(w, r); err != nil && !stateError(err) {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	s.afterMutation(w, r, "")
}

// handleClearForm handles the "Replace CSV" button.
func (s *Server) handleClearForm(w http.ResponseWriter, r *http.Request) {
	s.clear()
	s.afterMutation(w, r, "")
}

// handleSelectForm handles the person dropdown.
func (s *Server) handleSelectForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Select(r.FormValue("person")); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	s.afterMutation(w, r, templates.TabPerson)
}

func (s *Server) clear() core.State {
	st := s.service.Clear()
	s.views.purge()
	if s.metrics != nil {
		s.metrics.DatasetCleared()
	}
	return st
}

// handleAPIUpload accepts a multipart upload and returns the new state.
func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	st, err := s.upload(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleAPIClear discards the dataset.
func (s *Server) handleAPIClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.clear())
}

type selectRequest struct {
	Person string `json:"person"`
}

// handleAPISelect selects a person from a JSON body or form value.
func (s *Server) handleAPISelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
			s.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
			return
		}
	} else {
		req.Person = r.FormValue("person")
	}

	st, err := s.service.Select(req.Person)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleState returns the whole dashboard state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Snapshot())
}

// handleOverview returns summary, totals and series for all entrants.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.Overview()
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

type personsResponse struct {
	Persons  []string `json:"persons"`
	Selected string   `json:"selectedPerson"`
}

// handlePersons lists the unique persons, sorted.
func (s *Server) handlePersons(w http.ResponseWriter, r *http.Request) {
	st := s.service.Snapshot()
	persons := st.Persons
	if persons == nil {
		persons = []string{}
	}
	writeJSON(w, r, http.StatusOK, personsResponse{Persons: persons, Selected: st.Selected})
}

// handlePerson returns one person's view; without a path parameter it uses
// the selected person.
func (s *Server) handlePerson(w http.ResponseWriter, r *http.Request) {
	v, err := s.views.get(s.service.Snapshot(), chi.URLParam(r, "person"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
	HasData bool                     `json:"hasData"`
	Version uint64                   `json:"version"`
	Cached  int                      `json:"cachedViews"`
}

// handleHealth reports liveness and upload capacity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.service.Snapshot()
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:  "ok",
		Uploads: s.service.Limiter().Status(),
		HasData: st.HasData(),
		Version: st.Version,
		Cached:  s.views.len(),
	})
}
