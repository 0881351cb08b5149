package group

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	myMiddleware "hobbyhub/internal/middleware"
)

type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With().Str("component", "group_http").Logger(),
	}
}

func currentUser(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	return id, ok
}

func groupParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Hobby == "" {
		http.Error(w, "name and hobby are required", http.StatusBadRequest)
		return
	}

	g, err := h.svc.CreateGroup(r.Context(), userID, &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, g)
	case errors.Is(err, ErrHobbyRequired):
		http.Error(w, "You cannot create a group for a hobby you don't have", http.StatusForbidden)
	case errors.Is(err, ErrNameTaken):
		http.Error(w, "Group with this name already exists", http.StatusBadRequest)
	default:
		h.log.Error().Err(err).Msg("create group failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context(), r.URL.Query().Get("hobby"))
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []*Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	groupID, err := groupParam(r)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	err = h.svc.Join(r.Context(), groupID, userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"detail": "Joined the group successfully"})
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Group not found", http.StatusNotFound)
	case errors.Is(err, ErrAlreadyMember):
		http.Error(w, "Already a member of this group", http.StatusBadRequest)
	case errors.Is(err, ErrHobbyRequired):
		http.Error(w, "You cannot join this group without its hobby", http.StatusForbidden)
	default:
		h.log.Error().Err(err).Int64("group_id", groupID).Msg("join failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	groupID, err := groupParam(r)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	err = h.svc.Leave(r.Context(), groupID, userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"detail": "Left the group successfully"})
	case errors.Is(err, ErrNotMember):
		http.Error(w, "Not a member of this group", http.StatusBadRequest)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupParam(r)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	members, err := h.svc.Members(r.Context(), groupID)
	switch {
	case err == nil:
		if members == nil {
			members = []Member{}
		}
		writeJSON(w, http.StatusOK, members)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Group not found", http.StatusNotFound)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groups, err := h.svc.MyGroups(r.Context(), userID)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []*Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	groupID, err := groupParam(r)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Content == "" {
		http.Error(w, "title and content are required", http.StatusBadRequest)
		return
	}

	post, err := h.svc.CreatePost(r.Context(), groupID, userID, &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, post)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Group not found", http.StatusNotFound)
	case errors.Is(err, ErrNotMember):
		http.Error(w, "You must be a member of this group to create a post", http.StatusForbidden)
	default:
		h.log.Error().Err(err).Int64("group_id", groupID).Msg("create post failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	groupID, err := groupParam(r)
	if err != nil {
		http.Error(w, "Invalid group id", http.StatusBadRequest)
		return
	}

	posts, err := h.svc.ListPosts(r.Context(), groupID, userID)
	switch {
	case err == nil:
		if posts == nil {
			posts = []*Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Group not found", http.StatusNotFound)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
