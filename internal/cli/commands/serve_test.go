package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/match"
)

func TestHandleParse_ValidSQL(t *testing.T) {
	handler := handleParse(match.IndentationConfig{})

	body, err := json.Marshal(parseRequest{SQL: "select 1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Error)
	assert.Equal(t, "File", resp.Tree.Kind)
}

func TestHandleParse_DefaultsToAnsiDialect(t *testing.T) {
	handler := handleParse(nil)

	body, err := json.Marshal(parseRequest{SQL: "select 1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleParse_InvalidJSON(t *testing.T) {
	handler := handleParse(nil)

	req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "invalid JSON")
}

func TestHandleParse_UnknownDialect(t *testing.T) {
	handler := handleParse(nil)

	body, err := json.Marshal(parseRequest{SQL: "select 1", Dialect: "nope"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "unknown dialect")
}

func TestNewServeCommand_Metadata(t *testing.T) {
	cmd := NewServeCommand()
	assert.Equal(t, "serve", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	flag := cmd.Flags().Lookup("addr")
	require.NotNil(t, flag)
	assert.Equal(t, ":8080", flag.DefValue)
}
