package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
	"github.com/drblury/todobridge/internal/runtime/logging"
)

const maxBodyBytes = 1 << 20

const invalidJSONMessage = "Invalid JSON format"

type createBody struct {
	Title       *string `json:"title" validate:"required,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsCompleted bool    `json:"isCompleted"`
}

type replaceBody struct {
	ID          *int64  `json:"id"`
	Title       *string `json:"title" validate:"required,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsCompleted bool    `json:"isCompleted"`
}

func (s *server) listTodos(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, "list", err)
		return
	}
	if items == nil {
		items = []record.Record{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *server) getTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	item, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "get", err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *server) createTodo(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	item, err := s.store.Create(r.Context(), record.Draft{
		Title:       *body.Title,
		Description: body.Description,
		IsCompleted: body.IsCompleted,
	})
	if err != nil {
		s.writeStoreError(w, "create", err)
		return
	}

	s.events.Emit(r.Context(), events.Created(item, s.now()))
	w.Header().Set("Location", fmt.Sprintf("%s/%d", TodoItemsPath, item.ID))
	s.writeJSON(w, http.StatusCreated, item)
}

// replaceTodo overwrites every caller-controlled field. A missing description
// clears the stored one.
func (s *server) replaceTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var body replaceBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.ID != nil && *body.ID != id {
		s.writeError(w, http.StatusBadRequest, "id in body does not match id in path")
		return
	}

	description := ""
	if body.Description != nil {
		description = *body.Description
	}
	item, err := s.store.Update(r.Context(), id, record.Changes{
		Title:       body.Title,
		Description: &description,
		IsCompleted: &body.IsCompleted,
	})
	if err != nil {
		s.writeStoreError(w, "update", err)
		return
	}

	s.events.Emit(r.Context(), events.Updated(item, false, s.now()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, "delete", err)
		return
	}
	s.events.Emit(r.Context(), events.Deleted(id, s.now()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		s.logger.Debug("failed to read request body", logging.LogFields{"error": err.Error()})
		s.writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return nil, false
	}
	return data, true
}

// decodeBody reads and validates a JSON body into dst, answering 400 itself
// when the body is unusable.
func (s *server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	data, ok := s.readBody(w, r)
	if !ok {
		return false
	}
	if err := jsoncodec.Unmarshal(data, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return false
	}
	if err := record.ValidateStruct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
