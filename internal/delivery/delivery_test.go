package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPEmailSender(t *testing.T) {
	t.Run("SendsPayload", func(t *testing.T) {
		var got emailPayload
		var auth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sender := NewHTTPEmailSender(srv.URL, "key123", "clinic@example.com")
		err := sender.Send(context.Background(), "owner@example.com", "New message", "Dr. Smith sent you a message")
		assert.NoError(t, err)
		assert.Equal(t, "Bearer key123", auth)
		assert.Equal(t, "owner@example.com", got.To)
		assert.Equal(t, "clinic@example.com", got.From)
		assert.Equal(t, "New message", got.Subject)
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid recipient", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		sender := NewHTTPEmailSender(srv.URL, "key123", "clinic@example.com")
		err := sender.Send(context.Background(), "bad", "s", "b")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("NotConfigured", func(t *testing.T) {
		sender := NewHTTPEmailSender("", "", "")
		err := sender.Send(context.Background(), "owner@example.com", "s", "b")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestHTTPSMSSender(t *testing.T) {
	t.Run("SendsForm", func(t *testing.T) {
		var to, msg, from string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			to = r.PostFormValue("to")
			msg = r.PostFormValue("msg")
			from = r.PostFormValue("from")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sender := NewHTTPSMSSender(srv.URL, "key123", "VetCare")
		err := sender.Send(context.Background(), "+15550100", "New message from Dr. Smith")
		assert.NoError(t, err)
		assert.Equal(t, "+15550100", to)
		assert.Equal(t, "New message from Dr. Smith", msg)
		assert.Equal(t, "VetCare", from)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		sender := NewHTTPSMSSender("", "", "")
		err := sender.Send(context.Background(), "+15550100", "hi")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}
