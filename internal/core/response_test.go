package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"roofalert/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not an error envelope: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestJSON_WritesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, APIResponse{Data: map[string]int{"sent": 2}})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != `{"data":{"sent":2}}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, make(chan int))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "validation",
			err:        types.NewAppError(types.ErrCodeValidationInvalidPayload, "bad", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeValidationInvalidPayload,
		},
		{
			name:       "not found batch",
			err:        types.NewAppError(types.ErrCodeNotFoundBatch, "missing", nil),
			wantStatus: http.StatusNotFound,
			wantCode:   types.ErrCodeNotFoundBatch,
		},
		{
			name:       "wrapped upstream",
			err:        errors.Join(errors.New("ctx"), types.NewAppError(types.ErrCodeUpstreamAnalysis, "down", nil)),
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrCodeUpstreamAnalysis,
		},
		{
			name:       "plain error",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrCodeInternalUnexpected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()
			Error(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			detail := decodeError(t, rec)
			if detail.Code != string(tt.wantCode) || detail.RequestID != "req-1" {
				t.Errorf("detail = %+v", detail)
			}
			if strings.Contains(rec.Body.String(), "connection refused") {
				t.Error("internal error text leaked")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		AreaID string `json:"area_id"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"area_id":"75201"}`},
		{name: "empty", body: ``, wantErr: "must not be empty"},
		{name: "syntax", body: `{"area_id":`, wantErr: "JSON"},
		{name: "unknown field", body: `{"zip":"75201"}`, wantErr: "unknown field"},
		{name: "wrong type", body: `{"area_id":75201}`, wantErr: "invalid value"},
		{name: "trailing value", body: `{"area_id":"1"} {"area_id":"2"}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"area_id":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, wantErr: "1MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.AreaID != "75201" {
					t.Errorf("decoded %+v", dst)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if types.CodeOf(err) != types.ErrCodeValidationInvalidPayload {
				t.Errorf("code = %q", types.CodeOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
