// SPDX-License-Identifier: GPL-3.0-or-later
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestMain(m *testing.M) {
	log.InitLogging("error")
	os.Exit(m.Run())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGmail(t *testing.T, mux *http.ServeMux) *Gmail {
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g, err := NewGmail(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	assert.NoError(t, err)
	return g
}

func TestBuildQuery(t *testing.T) {
	after := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*60*60))

	assert.Equal(t, "is:unread", BuildQuery(domain.Query{UnreadOnly: true}))
	assert.Equal(t, "is:unread after:2024-05-01T10:30:00.000Z", BuildQuery(domain.Query{UnreadOnly: true, After: after}))
	assert.Equal(t, "after:2024-05-01T10:30:00.000Z", BuildQuery(domain.Query{After: after}))
	assert.Equal(t, "", BuildQuery(domain.Query{}))
}

func TestListMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "is:unread", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("maxResults"))
		writeJSON(w, &gmail.ListMessagesResponse{Messages: []*gmail.Message{
			{Id: "m1", ThreadId: "t1"},
			{Id: "m2", ThreadId: "t2"},
		}})
	})
	g := newTestGmail(t, mux)

	ids, err := g.ListMessages(context.Background(), domain.Query{UnreadOnly: true, MaxResults: 2})
	assert.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
}

func TestListMessagesEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"resultSizeEstimate": 0})
	})
	g := newTestGmail(t, mux)

	ids, err := g.ListMessages(context.Background(), domain.Query{UnreadOnly: true})
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListMessagesFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"code": 403, "message": "forbidden"}})
	})
	g := newTestGmail(t, mux)

	_, err := g.ListMessages(context.Background(), domain.Query{UnreadOnly: true})
	var providerErr *domain.ProviderError
	assert.True(t, errors.As(err, &providerErr))
	assert.Equal(t, "list", providerErr.Op)
}

func TestGetMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		switch r.PathValue("id") {
		case "multi":
			writeJSON(w, &gmail.Message{Id: "multi", ThreadId: "t1", Payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Headers: []*gmail.MessagePartHeader{
					{Name: "From", Value: "lead@corp.com"},
					{Name: "Subject", Value: "Hi"},
				},
				Parts: []*gmail.MessagePart{
					{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "cGxhaW4="}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "PGI-aHRtbDwvYj4="}},
					}},
					{MimeType: "application/pdf", Body: &gmail.MessagePartBody{AttachmentId: "a1"}},
				},
			}})
		case "single":
			writeJSON(w, &gmail.Message{Id: "single", ThreadId: "t2", Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: "c2luZ2xl"},
			}})
		case "nopayload":
			writeJSON(w, &gmail.Message{Id: "nopayload"})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"code": 404, "message": "not found"}})
		}
	})
	g := newTestGmail(t, mux)

	msg, err := g.GetMessage(context.Background(), "multi")
	assert.NoError(t, err)
	assert.Equal(t, &domain.Message{
		ID:       "multi",
		ThreadID: "t1",
		Headers: []domain.Header{
			{Name: "From", Value: "lead@corp.com"},
			{Name: "Subject", Value: "Hi"},
		},
		Body: domain.Body{Parts: []domain.Part{
			{MimeType: "multipart/alternative", Parts: []domain.Part{
				{MimeType: "text/plain", Data: "cGxhaW4="},
				{MimeType: "text/html", Data: "PGI-aHRtbDwvYj4="},
			}},
			{MimeType: "application/pdf"},
		}},
	}, msg)

	msg, err = g.GetMessage(context.Background(), "single")
	assert.NoError(t, err)
	assert.Equal(t, "c2luZ2xl", msg.Body.Data)
	assert.Empty(t, msg.Body.Parts)

	var providerErr *domain.ProviderError
	_, err = g.GetMessage(context.Background(), "nopayload")
	assert.True(t, errors.As(err, &providerErr))
	assert.ErrorIs(t, err, ErrNoPayload)

	_, err = g.GetMessage(context.Background(), "missing")
	assert.True(t, errors.As(err, &providerErr))
	assert.Equal(t, "get", providerErr.Op)
}

func TestModifyMessage(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "m1", r.PathValue("id"))

		req := &gmail.ModifyMessageRequest{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(req))
		assert.Equal(t, []string{"Label_1"}, req.AddLabelIds)
		assert.Equal(t, []string{domain.LabelUnread}, req.RemoveLabelIds)
		writeJSON(w, &gmail.Message{Id: "m1"})
	})
	g := newTestGmail(t, mux)

	err := g.ModifyMessage(context.Background(), "m1", []string{"Label_1"}, []string{domain.LabelUnread})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestLabels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &gmail.ListLabelsResponse{Labels: []*gmail.Label{
			{Id: "INBOX", Name: "INBOX"},
			{Id: "Label_1", Name: "Interested"},
		}})
	})
	mux.HandleFunc("POST /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		label := &gmail.Label{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(label))
		assert.Equal(t, "More Information", label.Name)
		assert.Equal(t, "labelShow", label.LabelListVisibility)
		assert.Equal(t, "show", label.MessageListVisibility)

		label.Id = "Label_2"
		writeJSON(w, label)
	})
	g := newTestGmail(t, mux)

	labels, err := g.ListLabels(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []*domain.Label{{ID: "INBOX", Name: "INBOX"}, {ID: "Label_1", Name: "Interested"}}, labels)

	label, err := g.CreateLabel(context.Background(), "More Information")
	assert.NoError(t, err)
	assert.Equal(t, &domain.Label{ID: "Label_2", Name: "More Information"}, label)
}

func TestSendMessage(t *testing.T) {
	raw := []byte("To: lead@corp.com\r\nSubject: Re: Hi\r\n\r\nThanks?>")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		msg := &gmail.Message{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(msg))
		assert.Equal(t, "t1", msg.ThreadId)

		decoded, err := base64.URLEncoding.DecodeString(msg.Raw)
		assert.NoError(t, err)
		assert.Equal(t, raw, decoded)

		writeJSON(w, &gmail.Message{Id: "sent1", ThreadId: "t1"})
	})
	g := newTestGmail(t, mux)

	result, err := g.SendMessage(context.Background(), raw, "t1")
	assert.NoError(t, err)
	assert.Equal(t, &domain.SendResult{ID: "sent1", ThreadID: "t1"}, result)
}
