package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistoryStore struct {
	entries []HistoryEntry
	err     error

	gotText  string
	gotPayer string
	gotLimit int
}

func (f *fakeHistoryStore) TopHistoryMatches(_ context.Context, normalizedText, payerName string, limit int) ([]HistoryEntry, error) {
	f.gotText = normalizedText
	f.gotPayer = payerName
	f.gotLimit = limit
	return f.entries, f.err
}

func TestHistoryAssist_BoostsStoredConfidence(t *testing.T) {
	store := &fakeHistoryStore{entries: []HistoryEntry{
		{AccountID: 1, Confidence: 80},
	}}

	out, err := HistoryAssist(context.Background(), store, "hans meier fee-1", "hans meier", 0.4)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].AccountID)
	assert.InDelta(t, 0.85, out[0].Confidence, 1e-9) // 80/100 + 0.05
	assert.Equal(t, 3, store.gotLimit)
}

func TestHistoryAssist_KeepsGeneratorConfidenceWhenHigher(t *testing.T) {
	store := &fakeHistoryStore{entries: []HistoryEntry{
		{AccountID: 1, Confidence: 40},
	}}

	out, err := HistoryAssist(context.Background(), store, "text", "payer", 0.65)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.65, out[0].Confidence, 1e-9)
}

func TestHistoryAssist_CapsAtOne(t *testing.T) {
	store := &fakeHistoryStore{entries: []HistoryEntry{
		{AccountID: 1, Confidence: 100},
	}}

	out, err := HistoryAssist(context.Background(), store, "text", "payer", 0)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Confidence)
}

func TestHistoryAssist_Empty(t *testing.T) {
	store := &fakeHistoryStore{}

	out, err := HistoryAssist(context.Background(), store, "text", "payer", 0)

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHistoryAssist_StoreError(t *testing.T) {
	store := &fakeHistoryStore{err: errors.New("db closed")}

	_, err := HistoryAssist(context.Background(), store, "text", "payer", 0)

	assert.Error(t, err)
}
