package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageFailureJSONCarriesCause(t *testing.T) {
	f := NewStageFailure(ReasonerError, "Trader", errors.New("502 bad gateway"))
	f.Phase = PhaseTrader

	data, err := json.Marshal(struct {
		Failure *StageFailure `json:"failure"`
	}{f})
	require.NoError(t, err)
	assert.JSONEq(t, `{"failure":{"kind":"ReasonerError","stage":"Trader","phase":"trader","message":"502 bad gateway"}}`, string(data))

	var back StageFailure
	require.NoError(t, json.Unmarshal(data[len(`{"failure":`):len(data)-1], &back))
	assert.Equal(t, ReasonerError, back.Kind)
	assert.Equal(t, PhaseTrader, back.Phase)
	assert.Equal(t, "502 bad gateway", back.Message())
}

func TestStageFailureJSONWithoutCause(t *testing.T) {
	data, err := json.Marshal(NewStageFailure(Cancelled, "", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Cancelled"}`, string(data))
}
