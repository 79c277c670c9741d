package mockservice

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound indicates the requested book or rating does not exist.
var ErrNotFound = errors.New("mockservice: not found")

// Book is a catalogue entry.
type Book struct {
	ID     int
	Title  string
	Author string
	Year   int
}

// Rating is the stored rating of one book.
type Rating struct {
	BookID    int
	Value     int
	UpdatedAt time.Time
}

// Store keeps the catalogue and the single demo user's ratings in memory.
type Store struct {
	mu      sync.RWMutex
	books   map[int]Book
	ratings map[int]Rating
	now     func() time.Time
}

// NewStore builds a store over the given catalogue.
func NewStore(books []Book) *Store {
	s := &Store{
		books:   make(map[int]Book, len(books)),
		ratings: make(map[int]Rating),
		now:     time.Now,
	}
	for _, b := range books {
		s.books[b.ID] = b
	}
	return s
}

// DefaultCatalogue is the seed data served by the mock command.
func DefaultCatalogue() []Book {
	return []Book{
		{ID: 1, Title: "Dune", Author: "Frank Herbert", Year: 1965},
		{ID: 2, Title: "Dune Messiah", Author: "Frank Herbert", Year: 1969},
		{ID: 3, Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", Year: 1969},
		{ID: 4, Title: "Neuromancer", Author: "William Gibson", Year: 1984},
		{ID: 5, Title: "Foundation", Author: "Isaac Asimov", Year: 1951},
	}
}

// Book returns the catalogue entry for id.
func (s *Store) Book(id int) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return b, nil
}

// Upsert stores value for book and reports whether the rating is new.
func (s *Store) Upsert(bookID, value int) (Rating, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[bookID]; !ok {
		return Rating{}, false, ErrNotFound
	}
	_, existed := s.ratings[bookID]
	r := Rating{BookID: bookID, Value: value, UpdatedAt: s.now().UTC()}
	s.ratings[bookID] = r
	return r, !existed, nil
}

// Delete removes the rating of book.
func (s *Store) Delete(bookID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ratings[bookID]; !ok {
		return ErrNotFound
	}
	delete(s.ratings, bookID)
	return nil
}

// Rating returns the stored rating of book, 0 when unrated.
func (s *Store) Rating(bookID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratings[bookID].Value
}

// RatedBook pairs a book with its rating for the profile page.
type RatedBook struct {
	Book
	Rating int
}

// Rated lists rated books ordered by id.
func (s *Store) Rated() []RatedBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RatedBook, 0, len(s.ratings))
	for id, r := range s.ratings {
		out = append(out, RatedBook{Book: s.books[id], Rating: r.Value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns books whose title or author contains query, ignoring case.
// An empty query matches nothing.
func (s *Store) Search(query string) []Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Book
	for _, b := range s.books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strconv.Itoa(b.Year) == q {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
