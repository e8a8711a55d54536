package escrow

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// escrowSpace namespaces derived escrow identities so they never collide with user ids.
var escrowSpace = uuid.MustParse("6f1d2a4e-93c5-4b0e-9a57-3c1e0b7d5a21")

const escrowSeed = "room_escrow"

// Account derives the escrow holding identity for a room. The same room id always
// yields the same account, so the record store never has to be trusted for it.
func Account(roomID uuid.UUID) (uuid.UUID, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("blake2b: %w", err)
	}
	data := append([]byte(escrowSeed), roomID[:]...)
	return uuid.NewHash(h, escrowSpace, data, 5), nil
}
