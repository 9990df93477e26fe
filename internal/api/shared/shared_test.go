package shared

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	ctx := SetTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, TraceIDLength*2)
	assert.NotEqual(t, id, GetTraceID(SetTraceID(context.Background())))
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestSubject(t *testing.T) {
	t.Parallel()

	_, ok := GetSubject(context.Background())
	assert.False(t, ok)

	subject, ok := GetSubject(SetSubject(context.Background(), "operator"))
	assert.True(t, ok)
	assert.Equal(t, "operator", subject)
}

type sample struct {
	Name string `json:"name" validate:"required,max=5"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"a"}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "unknown field", body: `{"name":"a","extra":1}`, wantErr: true},
		{name: "trailing value", body: `{"name":"a"}{"name":"b"}`, wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v sample
			err := DecodeJSON(httptest.NewRecorder(), r, &v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", v.Name)
		})
	}

	var v sample
	err := DecodeJSON(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &v)
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateRequest(sample{Name: "ok"}))
	assert.Error(t, ValidateRequest(sample{}))
	assert.Error(t, ValidateRequest(sample{Name: "toolong"}))
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/?count=7&bad=x", nil)
	n, err := QueryInt(r, "count", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = QueryInt(r, "missing", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = QueryInt(r, "bad", 1)
	assert.Error(t, err)
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/tasks/1", nil)
	r = r.WithContext(SetTraceID(r.Context()))
	w := httptest.NewRecorder()

	RespondWithErrorAndLog(w, r, http.StatusNotFound, "Task not found", assert.AnError)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Task not found", resp.Error)
	assert.Equal(t, GetTraceID(r.Context()), resp.TraceID)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
