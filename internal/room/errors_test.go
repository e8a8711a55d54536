package room

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	id := uuid.MustParse("0191d3f6-5a1e-7c3a-8f00-000000000001")

	err := opError("join", id, fmt.Errorf("transfer 5: %w", ErrInsufficientFunds))
	assert.Equal(t, CodeInsufficientFunds, CodeOf(err))
	assert.Equal(t, "room join 0191d3f6-5a1e-7c3a-8f00-000000000001: transfer 5: insufficient funds", err.Error())

	var re *Error
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, "join", re.Op)
	assert.Equal(t, id, re.RoomID)

	rolled := fmt.Errorf("%w; rollback error: %v", ErrTransferRejected, []error{errors.New("offline")})
	assert.Equal(t, CodeTransferRejected, CodeOf(opError("settle", id, rolled)))

	assert.Equal(t, CodeInvalidConfiguration, CodeOf(fmt.Errorf("%w: capacity", models.ErrInvalidConfiguration)))
	assert.Equal(t, CodeInvariantViolated, CodeOf(models.ErrInvariant))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}
