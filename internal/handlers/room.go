// internal/handlers/room.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/room"
)

type createRoomRequest struct {
	ID       uuid.UUID `json:"id"` // optional
	EntryFee uint64    `json:"entryFee"`
	Capacity uint8     `json:"capacity"`
}

type roomRequest struct {
	RoomID uuid.UUID `json:"roomId"`
}

type consumeRequest struct {
	RoomID   uuid.UUID         `json:"roomId"`
	Resource room.ResourceKind `json:"resource"`
}

type settleRequest struct {
	RoomID  uuid.UUID          `json:"roomId"`
	Winners []models.Placement `json:"winners"`
}

// CreateRoomHandler creates a Waiting room; the caller becomes its authority.
func CreateRoomHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		var req createRoomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rm, err := s.Create(r.Context(), room.CreateParams{
			ID:        req.ID,
			EntryFee:  req.EntryFee,
			Capacity:  req.Capacity,
			Authority: signer.Subject(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rm)
	}
}

// JoinRoomHandler stakes the caller's entry fee into the room.
func JoinRoomHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		var req roomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rm, err := s.Join(r.Context(), req.RoomID, signer.Subject(), signer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}

// ConsumeResourceHandler burns the cost of a power-up from the caller.
func ConsumeResourceHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		var req consumeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rm, err := s.Consume(r.Context(), req.RoomID, signer.Subject(), req.Resource, signer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}

// SettleRoomHandler pays out the pool; the caller must be the room authority.
func SettleRoomHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		var req settleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rm, err := s.Settle(r.Context(), req.RoomID, signer, req.Winners)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}

// CancelRoomHandler refunds every player; the caller must be the room authority.
func CancelRoomHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		signer, ok := callerSigner(w, r)
		if !ok {
			return
		}
		var req roomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rm, err := s.Cancel(r.Context(), req.RoomID, signer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}

// ReconcileRoomHandler retries deferred payouts. Any signed-in caller may trigger it.
func ReconcileRoomHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if _, ok := callerSigner(w, r); !ok {
			return
		}
		var req roomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rm, err := s.Reconcile(r.Context(), req.RoomID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}

// GetRoomHandler returns the room projection for ?id=.
func GetRoomHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		id, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "invalid room id")
			return
		}
		rm, err := s.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}

// Register mounts every room route on mux, each wrapped in mw.
func (s *RoomServer) Register(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	if mw == nil {
		mw = func(h http.Handler) http.Handler { return h }
	}
	routes := map[string]http.HandlerFunc{
		"/room/create":    CreateRoomHandler(s),
		"/room/join":      JoinRoomHandler(s),
		"/room/consume":   ConsumeResourceHandler(s),
		"/room/settle":    SettleRoomHandler(s),
		"/room/cancel":    CancelRoomHandler(s),
		"/room/reconcile": ReconcileRoomHandler(s),
		"/room/get":       GetRoomHandler(s),
		"/room/ws/":       RoomWSHandler(s),
	}
	for path, h := range routes {
		mux.Handle(path, mw(h))
	}
}
