package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStockCarriesAvailable(t *testing.T) {
	err := InsufficientStock(3, 5)

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	available, ok := err.Available()
	require.True(t, ok)
	assert.Equal(t, 3, available)
	assert.Contains(t, err.Error(), "only 3 unit(s) available")
}

func TestIsMatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("record sale: %w", ErrInvalidQuantity.WithDetail("quantity is 0"))

	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestWrapKeepsParent(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ErrMissingRate.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrMissingRate)
	assert.Equal(t, KindInternal, KindOf(cause))
}
