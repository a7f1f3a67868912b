package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFCMClientPostsPayload(t *testing.T) {
	var got fcmMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewFCMClient(srv.URL, "server-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.Send(context.Background(), Payload{
		TargetToken: "device-token",
		Data:        map[string]string{"chatId": "c1", "messageId": "m1"},
		Title:       "Berlin - Hamburg",
		Body:        "see you at 9",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "key=server-key" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if got.To != "device-token" {
		t.Fatalf("unexpected target: %q", got.To)
	}
	if got.Notification.Title != "Berlin - Hamburg" || got.Notification.Body != "see you at 9" {
		t.Fatalf("unexpected notification: %#v", got.Notification)
	}
	if got.Data["chatId"] != "c1" || got.Data["messageId"] != "m1" {
		t.Fatalf("unexpected data: %#v", got.Data)
	}
}

func TestFCMClientSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid registration", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewFCMClient(srv.URL, "server-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Send(context.Background(), Payload{TargetToken: "t"}); err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
}

func TestFCMClientRequiresTargetToken(t *testing.T) {
	client, err := NewFCMClient("http://localhost:0", "server-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Send(context.Background(), Payload{}); err == nil {
		t.Fatalf("expected error for missing token")
	}
}
