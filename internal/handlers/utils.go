package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jason-s-yu/takedown/internal/auth"
	"github.com/jason-s-yu/takedown/internal/room"
)

const authCookie = "auth_token"

// Codes for failures that happen before a transition runs.
const (
	codeBadRequest       room.Code = "BAD_REQUEST"
	codeUnauthenticated  room.Code = "UNAUTHENTICATED"
	codeMethodNotAllowed room.Code = "METHOD_NOT_ALLOWED"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == cookieName {
			return value
		}
	}
	return ""
}

// callerSigner authenticates the auth_token cookie. On failure it has already
// written the response.
func callerSigner(w http.ResponseWriter, r *http.Request) (auth.TokenSigner, bool) {
	token := extractCookieToken(r.Header.Get("Cookie"), authCookie)
	if token == "" {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "missing auth_token")
		return auth.TokenSigner{}, false
	}
	signer, err := auth.SignerFromTokens(token)
	if err != nil {
		writeErrorCode(w, http.StatusForbidden, codeUnauthenticated, "invalid token")
		return auth.TokenSigner{}, false
	}
	return signer, true
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "bad request payload: "+err.Error())
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeErrorCode(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string    `json:"error"`
	Code  room.Code `json:"code"`
}

func writeErrorCode(w http.ResponseWriter, status int, code room.Code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeError maps a transition failure to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := room.CodeOf(err)
	writeErrorCode(w, statusFor(code), code, errorMessage(err))
}

// errorMessage strips the room/op prefix the machine adds.
func errorMessage(err error) string {
	var re *room.Error
	if errors.As(err, &re) {
		return re.Err.Error()
	}
	return err.Error()
}

func statusFor(code room.Code) int {
	switch code {
	case room.CodeRoomNotFound:
		return http.StatusNotFound
	case room.CodeRoomAlreadyExists, room.CodeRoomNotWaiting, room.CodeRoomNotActive,
		room.CodeRoomNotFinished, room.CodeRoomClosed, room.CodeRoomFull, room.CodeAlreadyJoined:
		return http.StatusConflict
	case room.CodeUnauthorized, room.CodePlayerNotInRoom:
		return http.StatusForbidden
	case room.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case room.CodeInvalidConfiguration, room.CodeInvalidWinner, room.CodeUnknownResource, room.CodeArithmeticOverflow:
		return http.StatusBadRequest
	case room.CodeTransferRejected, room.CodeNoDestination:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
