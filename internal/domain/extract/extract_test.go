package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferenceCodes_FindsHyphenatedCodes(t *testing.T) {
	codes := ReferenceCodes("payment for abc-123-x4 thanks")
	assert.Equal(t, []string{"ABC-123-X4"}, codes)
}

func TestReferenceCodes_RequiresHyphen(t *testing.T) {
	assert.Nil(t, ReferenceCodes("plain ABC123 no hyphen"))
}

func TestReferenceCodes_DeduplicatesPreservingOrder(t *testing.T) {
	codes := ReferenceCodes("FEE-1 fee-2 FEE-1 FEE-3")
	assert.Equal(t, []string{"FEE-1", "FEE-2", "FEE-3"}, codes)
}

func TestReferenceCodes_CapsAtFour(t *testing.T) {
	codes := ReferenceCodes("A-1 B-2 C-3 D-4 E-5 F-6")
	assert.Equal(t, []string{"A-1", "B-2", "C-3", "D-4"}, codes)
}

func TestReferenceCodes_Empty(t *testing.T) {
	assert.Nil(t, ReferenceCodes(""))
	assert.Nil(t, ReferenceCodes("no codes here"))
}

func TestNameTokens_MinLengthThree(t *testing.T) {
	tokens := NameTokens("an na meier zu berlin")
	assert.Equal(t, []string{"meier", "berlin"}, tokens)
}

func TestNameTokens_Empty(t *testing.T) {
	assert.Nil(t, NameTokens(""))
	assert.Nil(t, NameTokens("a b"))
}
