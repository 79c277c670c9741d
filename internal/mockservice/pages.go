package mockservice

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"
)

const (
	searchPath = "/application/search/"
	starCount  = maxRating
)

type starView struct {
	Index  int
	Filled bool
}

type widgetView struct {
	ID     int
	Stars  []starView
	Hidden bool
}

type detailView struct {
	CSRFToken  string
	Book       Book
	UserRating template.JS
	SearchURL  template.JS
	SearchPath string
	Widget     widgetView
}

type profileEntryView struct {
	Book   Book
	Widget widgetView
}

type profileView struct {
	CSRFToken string
	Entries   []profileEntryView
}

type searchResultsView struct {
	Query string
	Books []Book
}

var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "widget"}}<div class="rating" id="{{.ID}}"><div class="rating-stars">{{range .Stars}}<i class="star {{if .Filled}}fas{{else}}far{{end}} fa-star" data-index="{{.Index}}"></i>{{end}}</div><i class="bin-icon fas fa-trash"{{if .Hidden}} style="display: none;"{{end}}></i></div>{{end}}

{{define "detail"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="csrf-token" content="{{.CSRFToken}}">
<title>{{.Book.Title}}</title>
<script>
var userRating = {{.UserRating}};
var searchUrl = {{.SearchURL}};
</script>
</head>
<body>
<form id="search-form" action="{{.SearchPath}}" method="get"><input id="search-input" name="q" type="text"></form>
<div id="search-results"></div>
<h1>{{.Book.Title}}</h1>
<p class="author">{{.Book.Author}} ({{.Book.Year}})</p>
{{template "widget" .Widget}}
</body>
</html>
{{end}}

{{define "profile"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="csrf-token" content="{{.CSRFToken}}">
<title>My ratings</title>
</head>
<body>
<ul id="rated-books">
{{range .Entries}}<li id="book-entry-{{.Book.ID}}"><span class="title">{{.Book.Title}}</span>{{template "widget" .Widget}}</li>
{{end}}</ul>
</body>
</html>
{{end}}

{{define "search-results"}}{{if .Books}}<ul class="search-results">{{range .Books}}<li><a href="/application/book-detail/{{.ID}}/">{{.Title}}</a> <span class="author">{{.Author}}</span></li>{{end}}</ul>{{else}}<p class="empty">No books match "{{.Query}}".</p>{{end}}{{end}}
`))

const (
	detailTemplate        = "detail"
	profileTemplate       = "profile"
	searchResultsTemplate = "search-results"
)

func newWidgetView(id, rating int, hideWhenUnrated bool) widgetView {
	stars := make([]starView, starCount)
	for i := range stars {
		stars[i] = starView{Index: i + 1, Filled: i < rating}
	}
	return widgetView{ID: id, Stars: stars, Hidden: hideWhenUnrated && rating == 0}
}

func (s *Server) handleDetailPage(w http.ResponseWriter, r *http.Request) {
	bookID, err := bookIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	book, err := s.store.Book(bookID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load book")
		return
	}

	rating := s.store.Rating(bookID)
	s.setCSRFCookie(w)
	s.renderHTML(w, detailTemplate, detailView{
		CSRFToken:  s.cfg.CSRFToken,
		Book:       book,
		UserRating: template.JS(strconv.Quote(strconv.Itoa(rating))),
		SearchURL:  template.JS(strconv.Quote(searchPath)),
		SearchPath: searchPath,
		Widget:     newWidgetView(book.ID, rating, true),
	})
}

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	rated := s.store.Rated()
	entries := make([]profileEntryView, 0, len(rated))
	for _, rb := range rated {
		entries = append(entries, profileEntryView{
			Book:   rb.Book,
			Widget: newWidgetView(rb.ID, rb.Rating, false),
		})
	}
	s.setCSRFCookie(w)
	s.renderHTML(w, profileTemplate, profileView{CSRFToken: s.cfg.CSRFToken, Entries: entries})
}

func (s *Server) setCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    s.cfg.CSRFToken,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) renderHTML(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render page")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
