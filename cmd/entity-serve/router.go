package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/entityserve"
	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/rfc9110"
)

// newRouter serves GET and HEAD from store through srv, and accepts
// conditional PUT and DELETE for updating it.
func newRouter(srv *entityserve.Server, store entity.Store, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(rfc9110.HeaderAllow, "GET, HEAD, PUT, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	read := srv.StoreHandler(store, objectKey)
	r.Method(http.MethodGet, "/*", read)
	r.Method(http.MethodHead, "/*", read)

	h := &writeHandler{store: store}
	r.Put("/*", h.put)
	r.Delete("/*", h.delete)
	return r
}

func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

type writeHandler struct {
	store entity.Store
}

func (h *writeHandler) put(w http.ResponseWriter, r *http.Request) {
	logger := getLogger(r)
	key := objectKey(r)
	current, ok := h.current(w, r, key)
	if !ok {
		return
	}

	e, err := h.store.Put(r.Context(), key, r.Header.Get(rfc9110.HeaderContentType), r.Body)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidKey) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error().Err(err).Str("key", key).Msg("Could not store entity")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	logger.Info().Str("key", key).Int64("size", e.Len()).Str("etag", e.ETag().String()).Msg("Stored entity")

	if tag := e.ETag(); !tag.IsZero() {
		w.Header().Set(rfc9110.HeaderETag, tag.String())
	}
	if lm := e.LastModified(); !lm.IsZero() {
		w.Header().Set(rfc9110.HeaderLastModified, rfc9110.FormatHTTPDate(lm))
	}
	if current == nil {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *writeHandler) delete(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	current, ok := h.current(w, r, key)
	if !ok {
		return
	}
	if current == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.store.Delete(r.Context(), key); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		getLogger(r).Error().Err(err).Str("key", key).Msg("Could not delete entity")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	getLogger(r).Info().Str("key", key).Msg("Deleted entity")
	w.WriteHeader(http.StatusNoContent)
}

// current looks up the entity at key and checks the request preconditions
// against it. It writes the response and returns false when the request
// should not go on. A missing entity is returned as nil.
func (h *writeHandler) current(w http.ResponseWriter, r *http.Request, key string) (entity.Entity, bool) {
	e, err := h.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		e = nil
	case errors.Is(err, entity.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	case err != nil:
		getLogger(r).Error().Err(err).Str("key", key).Msg("Could not look up entity")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}

	conds, err := rfc9110.ParseConditions(r.Header)
	if err != nil {
		getLogger(r).Debug().Err(err).Msg("Ignoring malformed request fields")
	}
	if status := evaluate(r.Method, conds, e).Status(); status != 0 {
		w.WriteHeader(status)
		return nil, false
	}
	return e, true
}

// evaluate checks the conditional fields of an unsafe request. If-Match
// needs a current representation to match, even for "*".
func evaluate(method string, c rfc9110.Conditions, current entity.Entity) rfc9110.Outcome {
	if current == nil {
		if c.IfMatch != nil {
			return rfc9110.PreconditionFailed
		}
		return rfc9110.Proceed
	}
	v := rfc9110.Validators{ETag: current.ETag(), LastModified: current.LastModified()}
	return rfc9110.Evaluate(method, c, v)
}

// getLogger returns the logger from the request context.
// If no logger is found, it will return the default logger.
func getLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	return logger
}
