package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/ports"
)

type Handler struct {
	care ports.CareLifecycleService
	gate ports.SessionGate
}

func NewHandler(care ports.CareLifecycleService, gate ports.SessionGate) *Handler {
	return &Handler{care: care, gate: gate}
}

// --- SESSIONS (Session Gate) ---

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IdentityID string `json:"identity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IdentityID == "" {
		http.Error(w, "identity_id is required", http.StatusBadRequest)
		return
	}

	token, err := h.gate.Open(r.Context(), body.IdentityID)
	if err != nil {
		// Refus à la création : on renvoie le statut complet pour que le
		// client affiche le bon message (support vs nouveau thérapeute).
		var denied *domain.AccessDeniedError
		if errors.As(err, &denied) {
			writeJSON(w, http.StatusForbidden, denied.Status)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// --- ACTIONS ADMIN ---

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	result, err := h.care.Suspend(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	result, err := h.care.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- ACTIONS THÉRAPEUTE ---

func (h *Handler) createRelationship(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleTherapist) {
		return
	}
	var body struct {
		TherapistID string `json:"therapist_id"`
		PatientID   string `json:"patient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TherapistID == "" || body.PatientID == "" {
		http.Error(w, "therapist_id and patient_id are required", http.StatusBadRequest)
		return
	}

	rel, err := h.care.CreateRelationship(r.Context(), ports.CreateRelationshipCmd{
		TherapistID: body.TherapistID,
		PatientID:   body.PatientID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	h.endRelationship(w, r, domain.StateUnlinked)
}

func (h *Handler) discharge(w http.ResponseWriter, r *http.Request) {
	h.endRelationship(w, r, domain.StateDischarged)
}

func (h *Handler) endRelationship(w http.ResponseWriter, r *http.Request, outcome domain.RelationshipState) {
	if !h.requireRole(w, r, domain.RoleTherapist) {
		return
	}
	var body struct {
		Reason *string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body) // reason optionnelle, body vide accepté

	result, err := h.care.EndRelationship(r.Context(), ports.EndRelationshipCmd{
		RelationshipID: chi.URLParam(r, "id"),
		Outcome:        outcome,
		Reason:         body.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleTherapist) {
		return
	}
	var body struct {
		NewTherapistID string  `json:"new_therapist_id"`
		Reason         *string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewTherapistID == "" {
		http.Error(w, "new_therapist_id is required", http.StatusBadRequest)
		return
	}

	rel, err := h.care.Transfer(r.Context(), ports.TransferCmd{
		RelationshipID: chi.URLParam(r, "id"),
		NewTherapistID: body.NewTherapistID,
		Reason:         body.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// --- CHECK ACCESS (le endpoint de poll) ---

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	status, err := h.care.CheckAccess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- HELPERS ---

// requireRole recharge l'identité de l'acteur : le rôle dans le token ne
// suffit pas pour une action sensible (l'acteur a pu être banni depuis).
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role domain.Role) bool {
	actor, err := h.care.GetIdentity(r.Context(), ActorID(r.Context()))
	if err != nil {
		http.Error(w, "unknown actor", http.StatusUnauthorized)
		return false
	}
	if actor.Role != role || actor.IsBanned() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("❌ Failed to encode response", "error", err)
	}
}

// writeError traduit les erreurs du domaine en statuts HTTP.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrIdentityNotFound), errors.Is(err, domain.ErrRelationshipNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrPatientAlreadyLinked), errors.Is(err, domain.ErrRelationshipClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidRole), errors.Is(err, domain.ErrInvalidDisplayName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrIdentitySuspended):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		slog.Error("❌ Unhandled error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
