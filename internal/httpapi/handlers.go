package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sandwichfarm/clawrank/internal/entities"
	"github.com/sandwichfarm/clawrank/internal/feed"
	"github.com/sandwichfarm/clawrank/internal/ranking"
)

const maxLimit = 500

// options reads show_all, range and limit on top of the configured defaults
func (s *Server) options(r *http.Request) (feed.Options, error) {
	opts := s.service.DefaultOptions()
	q := r.URL.Query()

	if v := q.Get("show_all"); v != "" {
		showAll, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("show_all must be a boolean")
		}
		opts.ShowAll = showAll
	}

	if v := q.Get("range"); v != "" {
		tr, err := ranking.ParseTimeRange(v)
		if err != nil {
			return opts, err
		}
		opts.TimeRange = tr
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxLimit {
			return opts, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		opts.Limit = limit
	}

	return opts, nil
}

// status maps a listing to its HTTP status: a failed list is a bad gateway, a missing post is 404
func status[T any](l feed.Listing[T]) int {
	switch {
	case errors.Is(l.Err, feed.ErrNotFound):
		return http.StatusNotFound
	case l.IsError():
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func postListing(l feed.Listing[ranking.RankedPost]) listingResponse[postJSON] {
	resp := renderListing(l, renderPost)
	if l.IsMetricsLoading() {
		for i := range resp.Items {
			resp.Items[i].Metrics = nil
		}
	}
	return resp
}

func (s *Server) writePosts(w http.ResponseWriter, l feed.Listing[ranking.RankedPost]) {
	writeJSON(w, status(l), postListing(l))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	diag := s.diag.CollectAll(r.Context())
	code := http.StatusOK
	if !diag.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, diag)
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writePosts(w, feed.Within(s.service.PopularPosts(r.Context(), opts), s.cfg.MetricsWait()))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var until int64
	if v := r.URL.Query().Get("cursor"); v != "" {
		until, err = strconv.ParseInt(v, 10, 64)
		if err != nil || until <= 0 {
			writeError(w, http.StatusBadRequest, "cursor must be a positive unix timestamp")
			return
		}
	}

	f := s.service.RecentFeed(opts, until)
	if _, err := f.FetchNextPage(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	l := feed.Within(f.Listing(r.Context()), s.cfg.MetricsWait())
	resp := postListing(l)
	hasNext := f.HasNextPage()
	resp.HasNextPage = &hasNext
	if hasNext {
		next := f.NextCursor()
		resp.NextCursor = &next
	}
	writeJSON(w, status(l), resp)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l := feed.Within(s.service.PopularAgents(r.Context(), opts), s.cfg.MetricsWait())
	writeJSON(w, status(l), renderListing(l, renderAuthor))
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l := s.service.PopularCommunities(r.Context(), opts)
	writeJSON(w, status(l), renderListing(l, renderCommunity))
}

func (s *Server) handleCommunity(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "community name is required")
		return
	}
	s.writePosts(w, feed.Within(s.service.CommunityPosts(r.Context(), name, opts), s.cfg.MetricsWait()))
}

func (s *Server) handleRecentZaps(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.refresher != nil && s.refresher.Serves(opts) {
		if l, _, ok := s.refresher.Latest(); ok {
			writeJSON(w, status(l), renderListing(l, renderZap))
			return
		}
	}

	l := s.service.RecentZaps(r.Context(), opts)
	writeJSON(w, status(l), renderListing(l, renderZap))
}

func (s *Server) handleLargestZaps(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l := s.service.LargestZaps(r.Context(), opts)
	writeJSON(w, status(l), renderListing(l, renderZap))
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := entities.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writePosts(w, s.service.Post(r.Context(), id, opts))
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := entities.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.service.Thread(r.Context(), id, opts)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, renderThread(view))
	}
}

func (s *Server) handleAuthorPosts(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pubkey, err := entities.ParsePubkey(r.PathValue("pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writePosts(w, feed.Within(s.service.AuthorPosts(r.Context(), pubkey, opts), s.cfg.MetricsWait()))
}

