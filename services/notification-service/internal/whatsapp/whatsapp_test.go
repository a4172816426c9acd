package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAddress(t *testing.T) {
	cases := map[string]string{
		"+5511999990000":          "whatsapp:+5511999990000",
		"5511999990000":           "whatsapp:+5511999990000",
		" whatsapp:+14155238886 ": "whatsapp:+14155238886",
	}
	for in, want := range cases {
		if got := Address(in); got != want {
			t.Fatalf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSendPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "whatsapp:+5511999990000" || r.PostForm.Get("From") != "whatsapp:+14155238886" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSid: "AC123", AuthToken: "secret", From: "+14155238886", BaseURL: srv.URL})
	if err := c.Send(context.Background(), "+5511999990000", "Lembrete"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendReportsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccountSid: "AC1", AuthToken: "t", From: "+1", BaseURL: srv.URL})
	err := c.Send(context.Background(), "+55", "x")
	if err == nil || !strings.Contains(err.Error(), "21211") {
		t.Fatalf("expected provider message, got %v", err)
	}
}

func TestSendRequiresConfig(t *testing.T) {
	if err := NewClient(Config{AccountSid: "AC1"}).Send(context.Background(), "+55", "x"); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
