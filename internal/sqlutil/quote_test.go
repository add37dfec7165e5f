package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`readings`", QuoteIdentifier("readings"))
	assert.Equal(t, "`we``ird`", QuoteIdentifier("we`ird"))
}
