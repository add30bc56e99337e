package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/liseuse/bookmark"
	"github.com/hazyhaar/liseuse/history"
	"github.com/hazyhaar/liseuse/probe"
	"github.com/hazyhaar/liseuse/reader"
	"github.com/hazyhaar/liseuse/settings"
)

type apiServer struct {
	sessions *sessionManager
	marks    *bookmark.Store
	rec      *history.Recorder
	logger   *slog.Logger
}

func (s *apiServer) mount(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.openSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.closeSession)
			r.Post("/page", s.page)
			r.Get("/location", s.location)
			r.Get("/search", s.search)
			r.Get("/settings", s.getSettings)
			r.Patch("/settings", s.patchSettings)
			r.Get("/bookmarks", s.listBookmarks)
			r.Post("/bookmarks", s.addBookmark)
		})
	})
	r.Delete("/api/bookmarks/{bookmarkID}", s.deleteBookmark)
	r.Post("/api/probe", s.probeDocument)
	r.Get("/api/history", s.listHistory)
}

func (s *apiServer) sessionInfo(r *http.Request, e *entry) map[string]any {
	info := map[string]any{
		"id":  e.ID,
		"doc": e.Doc,
	}
	if ready := e.Ready(); ready != nil {
		info["format"] = ready.Format
		info["kind"] = ready.Kind
	}
	if loc, err := e.Reader.Location(r.Context()); err == nil {
		info["location"] = loc
	}
	return info
}

func (s *apiServer) openSession(w http.ResponseWriter, r *http.Request) {
	var doc reader.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, 400, err)
		return
	}
	e, err := s.sessions.Open(r.Context(), doc)
	if err != nil {
		writeError(w, 422, err)
		return
	}
	writeJSON(w, 201, s.sessionInfo(r, e))
}

func (s *apiServer) listSessions(w http.ResponseWriter, r *http.Request) {
	list := []map[string]any{}
	for _, e := range s.sessions.List() {
		list = append(list, s.sessionInfo(r, e))
	}
	writeJSON(w, 200, list)
}

func (s *apiServer) getSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, 200, s.sessionInfo(r, e))
}

func (s *apiServer) closeSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Close(r.Context(), chi.URLParam(r, "sessionID")) {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, 200, map[string]string{"status": "closed"})
}

// page moves the session: a locator wins over a direction when both arrive.
func (s *apiServer) page(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	var req struct {
		Direction string `json:"direction,omitempty"`
		Locator   string `json:"locator,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}

	var err error
	switch {
	case req.Locator != "":
		err = e.Reader.Navigate(r.Context(), req.Locator)
	case req.Direction == "prev":
		err = e.Reader.Prev(r.Context())
	default:
		err = e.Reader.Next(r.Context())
	}
	if err != nil {
		writeError(w, 422, err)
		return
	}
	loc, err := e.Reader.Location(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, loc)
}

func (s *apiServer) location(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	loc, err := e.Reader.Location(r.Context())
	if err != nil {
		writeError(w, 422, err)
		return
	}
	writeJSON(w, 200, loc)
}

func (s *apiServer) search(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, 400, map[string]string{"error": "q parameter is required"})
		return
	}
	matches, err := e.Reader.Search(r.Context(), query)
	if err != nil {
		writeError(w, 422, err)
		return
	}
	s.sessions.record(e, history.EventSearch, strconv.Quote(query))
	writeJSON(w, 200, map[string]any{"query": query, "matches": matches})
}

func (s *apiServer) getSettings(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, 200, e.Reader.Settings())
}

func (s *apiServer) patchSettings(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	var p settings.Partial
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, 400, err)
		return
	}
	writeJSON(w, 200, e.Reader.UpdateSettings(p))
}

func (s *apiServer) addBookmark(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	var req struct {
		Label string `json:"label,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	bm, err := e.Reader.AddBookmark(r.Context(), req.Label)
	if err != nil {
		writeError(w, 422, err)
		return
	}
	writeJSON(w, 201, bm)
}

func (s *apiServer) listBookmarks(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, 404, map[string]string{"error": "session not found"})
		return
	}
	list, err := s.marks.ListByDoc(r.Context(), e.Doc.ID, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if list == nil {
		list = []*bookmark.Bookmark{}
	}
	writeJSON(w, 200, list)
}

func (s *apiServer) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.marks.Delete(r.Context(), chi.URLParam(r, "bookmarkID")); err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

// probeDocument inspects a local file without opening a session.
func (s *apiServer) probeDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		MIME string `json:"mime,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if req.Path == "" {
		writeJSON(w, 400, map[string]string{"error": "path is required"})
		return
	}
	info, err := probe.Inspect(r.Context(), req.Path, req.MIME)
	if err != nil {
		writeError(w, 422, err)
		return
	}
	writeJSON(w, 200, info)
}

// listHistory returns reading events, scoped to one document via doc_id.
func (s *apiServer) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		writeJSON(w, 200, []any{})
		return
	}
	s.rec.Flush()
	limit := queryInt(r, "limit", 100)
	var (
		events []*history.Event
		err    error
	)
	if docID := r.URL.Query().Get("doc_id"); docID != "" {
		events, err = s.rec.ListByDoc(r.Context(), docID, limit)
	} else {
		events, err = s.rec.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if events == nil {
		events = []*history.Event{}
	}
	writeJSON(w, 200, events)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
