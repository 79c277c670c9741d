package mockservice

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
)

const (
	maxRequestBody = 1 << 20 // 1 MiB
	minRating      = 1
	maxRating      = 5
	csrfFormField  = "csrfmiddlewaretoken"
	csrfHeader     = "X-CSRFToken"
	csrfCookieName = "csrftoken"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Message string `json:"message"`
	Rating  int    `json:"rating,omitempty"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	bookID, err := bookIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	if !s.checkCSRF(r) {
		s.respondError(w, http.StatusForbidden, "CSRF_FAILED", "CSRF verification failed")
		return
	}

	value, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("rating")))
	if err != nil || value < minRating || value > maxRating {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rating must be an integer between 1 and 5")
		return
	}

	rating, inserted, err := s.store.Upsert(bookID, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.logger.Error().Err(err).Int("book", bookID).Msg("upsert rating failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save rating")
		return
	}

	msg := "Rating updated"
	if inserted {
		msg = "Rating saved"
	}
	s.logger.Debug().
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("book", bookID).
		Int("rating", rating.Value).
		Bool("inserted", inserted).
		Msg("rating stored")
	s.respondJSON(w, http.StatusOK, ackResponse{Message: msg, Rating: rating.Value})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	bookID, err := bookIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	if !s.checkCSRF(r) {
		s.respondError(w, http.StatusForbidden, "CSRF_FAILED", "CSRF verification failed")
		return
	}

	if err := s.store.Delete(bookID); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Rating not found")
			return
		}
		s.logger.Error().Err(err).Int("book", bookID).Msg("delete rating failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to remove rating")
		return
	}
	s.respondJSON(w, http.StatusOK, ackResponse{Message: "Rating removed"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	books := s.store.Search(query)
	s.renderHTML(w, searchResultsTemplate, searchResultsView{Query: query, Books: books})
}

// parseForm bounds and parses a form body, answering 400 on failure.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Unable to parse request body")
		return false
	}
	return true
}

// checkCSRF accepts the token from the form field or the header.
func (s *Server) checkCSRF(r *http.Request) bool {
	token := r.PostFormValue(csrfFormField)
	if token == "" {
		token = r.Header.Get(csrfHeader)
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CSRFToken)) == 1
}

func bookIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "bookID")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.New("book id must be a positive integer")
	}
	return id, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
