package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/algovids/algovids-agent/internal/translate"
)

type fakeTranslator struct {
	err  error
	reqs []translate.Request
}

func (f *fakeTranslator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &translate.Result{Original: req.Text, Translated: "अनुवाद", Language: req.Language}, nil
}

func translateRouter(tr *fakeTranslator, defaultKey string) http.Handler {
	return NewRouter(ServerConfig{
		Renders:           &fakeRenders{},
		Translator:        tr,
		DefaultCredential: defaultKey,
		Logger:            discardLogger(),
		StartTime:         time.Now(),
	})
}

func postTranslate(h http.Handler, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/translate-hindi", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(CredentialHeader, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTranslateHandler_Success(t *testing.T) {
	tr := &fakeTranslator{}
	rr := postTranslate(translateRouter(tr, "env-key"), `{"text":"hello"}`, "header-key")

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["original_text"] != "hello" || body["translated_text"] != "अनुवाद" || body["language"] != "Hindi" {
		t.Errorf("body = %v", body)
	}
	if len(tr.reqs) != 1 || tr.reqs[0].Credential != "header-key" || tr.reqs[0].Language != translate.DefaultLanguage {
		t.Errorf("requests = %+v", tr.reqs)
	}
}

func TestTranslateHandler_DefaultCredential(t *testing.T) {
	tr := &fakeTranslator{}
	rr := postTranslate(translateRouter(tr, "env-key"), `{"text":"hello"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	if tr.reqs[0].Credential != "env-key" {
		t.Errorf("credential = %q, want env-key", tr.reqs[0].Credential)
	}
}

func TestTranslateHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid request body"},
		{"empty text", `{"text":""}`, translate.ErrEmptyText, http.StatusBadRequest, "Text is required"},
		{"missing credential", `{"text":"hi"}`, translate.ErrMissingCredential, http.StatusBadRequest, "Gemini API key not provided"},
		{"service failure", `{"text":"hi"}`, errors.New("quota exceeded"), http.StatusInternalServerError, "Translation failed: quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postTranslate(translateRouter(&fakeTranslator{err: tt.err}, ""), tt.body, "k")
			if rr.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d", rr.Code, tt.wantCode)
			}
			if body := decodeJSONBody(t, rr); body["error"] != tt.wantErr {
				t.Errorf("error = %v, want %q", body["error"], tt.wantErr)
			}
		})
	}
}

func TestTranslateHandler_NotRegisteredWithoutTranslator(t *testing.T) {
	h := NewRouter(ServerConfig{Renders: &fakeRenders{}, Logger: discardLogger(), StartTime: time.Now()})
	rr := postTranslate(h, `{"text":"hi"}`, "k")
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want 404/405", rr.Code)
	}
}
