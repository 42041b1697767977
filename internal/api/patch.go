package api

import (
	"fmt"
	"net/http"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/record"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
)

// patchView is the part of a record a JSON Patch document may touch.
type patchView struct {
	Title       string  `json:"title" validate:"required,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsCompleted bool    `json:"isCompleted"`
}

var patchableFields = map[string]struct{}{
	"title":       {},
	"description": {},
	"isCompleted": {},
}

func viewOf(r record.Record) patchView {
	return patchView{Title: r.Title, Description: r.Description, IsCompleted: r.IsCompleted}
}

// patchTodo applies an RFC 6902 document to the patchable fields of a record.
func (s *server) patchTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	patch, err := jsonpatch.DecodePatch(data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}

	current, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "get", err)
		return
	}

	changes, err := applyPatch(patch, viewOf(current))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := s.store.Update(r.Context(), id, changes)
	if err != nil {
		s.writeStoreError(w, "patch", err)
		return
	}

	s.events.Emit(r.Context(), events.Updated(item, true, s.now()))
	w.WriteHeader(http.StatusNoContent)
}

// applyPatch runs patch against before and returns the fields that changed.
func applyPatch(patch jsonpatch.Patch, before patchView) (record.Changes, error) {
	doc, err := jsoncodec.Marshal(before)
	if err != nil {
		return record.Changes{}, err
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return record.Changes{}, fmt.Errorf("invalid patch: %w", err)
	}

	var fields map[string]any
	if err := jsoncodec.Unmarshal(patched, &fields); err != nil {
		return record.Changes{}, fmt.Errorf("invalid patch: %w", err)
	}
	var unknown []string
	for name := range fields {
		if _, ok := patchableFields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return record.Changes{}, fmt.Errorf("invalid patch: fields %v cannot be patched", unknown)
	}

	var after patchView
	if err := jsoncodec.Unmarshal(patched, &after); err != nil {
		return record.Changes{}, fmt.Errorf("invalid patch: %w", err)
	}
	if _, ok := fields["title"]; !ok {
		return record.Changes{}, &record.ValidationError{Field: "title", Reason: "is required"}
	}
	if err := record.ValidateStruct(after); err != nil {
		return record.Changes{}, err
	}

	var changes record.Changes
	if after.Title != before.Title {
		changes.Title = &after.Title
	}
	if !sameDescription(before.Description, after.Description) {
		desc := ""
		if after.Description != nil {
			desc = *after.Description
		}
		changes.Description = &desc
	}
	if after.IsCompleted != before.IsCompleted {
		changes.IsCompleted = &after.IsCompleted
	}
	return changes, nil
}

func sameDescription(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
