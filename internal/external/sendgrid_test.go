package external

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"roofalert/internal/types"
)

type capturedMail struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
		CustomArgs map[string]string `json:"custom_args"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	Attachments []struct {
		Content     string `json:"content"`
		Type        string `json:"type"`
		Filename    string `json:"filename"`
		Disposition string `json:"disposition"`
	} `json:"attachments"`
}

func newTestSendGrid(serverURL string) *SendGridClient {
	base := newTestClient(fastPolicy(0), WithFailureCode(types.ErrCodeUpstreamEmailProvider))
	return NewSendGridClientWithBase(base, SendGridClientConfig{APIKey: "SG.test-key", BaseURL: serverURL})
}

func sampleInput() types.SendInput {
	return types.SendInput{
		To:          "owner@example.com",
		From:        types.SenderIdentity{Name: "Roof Alerts", Address: "alerts@example.com"},
		Subject:     "Roof Damage Report - Zipcode 75201",
		BodyHTML:    "<p>hello</p>",
		BodyText:    "hello",
		ReferenceID: "batch-1/3",
		Attachments: []types.Attachment{
			{Filename: "annotated_detection.png", ContentType: "image/png", Content: []byte{0x89, 'P', 'N', 'G'}},
		},
	}
}

func TestSendGridSend_Success(t *testing.T) {
	var got capturedMail
	var auth, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	id, err := newTestSendGrid(server.URL).Send(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sg-msg-1" {
		t.Errorf("message id = %q", id)
	}
	if auth != "Bearer SG.test-key" || path != "/v3/mail/send" {
		t.Errorf("auth=%q path=%q", auth, path)
	}
	if got.Subject != "Roof Damage Report - Zipcode 75201" || got.From.Email != "alerts@example.com" {
		t.Errorf("unexpected header fields: %+v", got)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "owner@example.com" {
		t.Fatalf("unexpected personalizations: %+v", got.Personalizations)
	}
	if got.Personalizations[0].CustomArgs["reference_id"] != "batch-1/3" {
		t.Errorf("custom args = %v", got.Personalizations[0].CustomArgs)
	}
	if len(got.Content) != 2 || got.Content[0].Type != "text/plain" || got.Content[1].Type != "text/html" {
		t.Errorf("unexpected content: %+v", got.Content)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %d", len(got.Attachments))
	}
	att := got.Attachments[0]
	raw, _ := base64.StdEncoding.DecodeString(att.Content)
	if att.Filename != "annotated_detection.png" || att.Type != "image/png" || string(raw) != "\x89PNG" {
		t.Errorf("unexpected attachment: %+v", att)
	}
}

func TestSendGridSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   types.ErrorCode
	}{
		{"blocked", http.StatusForbidden, `{"errors":[{"message":"suppressed"}]}`, types.ErrCodeEmailBlocked},
		{"bad request", http.StatusBadRequest, `{"errors":[{"message":"bad from"}]}`, types.ErrCodeUpstreamEmailProvider},
		{"server error", http.StatusInternalServerError, `oops`, types.ErrCodeUpstreamEmailProvider},
		{"throttled", http.StatusTooManyRequests, ``, types.ErrCodeUpstreamRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestSendGrid(server.URL).Send(context.Background(), sampleInput())
			if got := types.CodeOf(err); got != tt.want {
				t.Errorf("code = %q, want %q (err=%v)", got, tt.want, err)
			}
		})
	}
}
