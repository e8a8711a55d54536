package auth

import (
	"slices"

	"github.com/google/uuid"
)

// TokenSigner holds the identities proven by the verified session tokens of
// one request.
type TokenSigner struct {
	subjects []uuid.UUID
}

// SignerFromTokens verifies every token and fails on the first bad one.
func SignerFromTokens(tokens ...string) (TokenSigner, error) {
	s := TokenSigner{subjects: make([]uuid.UUID, 0, len(tokens))}
	for _, tok := range tokens {
		id, err := AuthenticateJWT(tok)
		if err != nil {
			return TokenSigner{}, err
		}
		if !slices.Contains(s.subjects, id) {
			s.subjects = append(s.subjects, id)
		}
	}
	return s, nil
}

// IsSignedBy reports whether one of the tokens was issued to identity.
func (s TokenSigner) IsSignedBy(identity uuid.UUID) bool {
	return slices.Contains(s.subjects, identity)
}

// Subject is the identity of the first token, or uuid.Nil.
func (s TokenSigner) Subject() uuid.UUID {
	if len(s.subjects) == 0 {
		return uuid.Nil
	}
	return s.subjects[0]
}

// StaticSigner vouches for a fixed list of identities. Internal callers that
// already authenticated by other means use it.
type StaticSigner []uuid.UUID

func (s StaticSigner) IsSignedBy(identity uuid.UUID) bool {
	return slices.Contains(s, identity)
}
