package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/waifu-coder/pkg/conversation"
	"github.com/go-go-golems/waifu-coder/pkg/conversation/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *builder.Payload {
	return &builder.Payload{Messages: []builder.Turn{
		{Role: conversation.RoleSystem, Content: "You are Miku."},
		{Role: conversation.RoleUser, Content: "hello"},
	}}
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *Client) {
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	c := NewClient(StaticSettings{
		APIKey:  "csk-test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "llama3.1-8b",
	})
	return srv, c
}

func TestClient_Complete(t *testing.T) {
	var body map[string]interface{}
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer csk-test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"llama3.1-8b","choices":[{"index":0,"message":{"role":"assistant","content":"Hi! ♡"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	})

	reply, err := c.Complete(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "Hi! ♡", reply)

	assert.Equal(t, "llama3.1-8b", body["model"])
	assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
	assert.InDelta(t, DefaultTemperature, body["temperature"], 0.0001)
	msgs, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "You are Miku.", first["content"])
}

func TestClient_NonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`upstream broke`))
		})
		_, err := c.Complete(context.Background(), testPayload())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRemoteCall)

		var rce *RemoteCallError
		require.ErrorAs(t, err, &rce)
		assert.Equal(t, status, rce.StatusCode)
	}
}

func TestClient_APIErrorBody(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Wrong API Key","type":"invalid_request_error","code":"wrong_api_key"}}`))
	})
	_, err := c.Complete(context.Background(), testPayload())
	var rce *RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, http.StatusUnauthorized, rce.StatusCode)
}

func TestClient_MalformedResponses(t *testing.T) {
	cases := map[string]string{
		"no choices":    `{"id":"1","choices":[]}`,
		"empty content": `{"id":"1","choices":[{"index":0,"message":{"role":"assistant"}}]}`,
		"not json":      `<html>hello</html>`,
		"wrong shape":   `{"choices":"nope"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Complete(context.Background(), testPayload())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Complete(context.Background(), testPayload())
	var rce *RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, 0, rce.StatusCode)
}

func TestClient_MissingKey(t *testing.T) {
	c := NewClient(StaticSettings{})
	_, err := c.Complete(context.Background(), testPayload())
	assert.ErrorIs(t, err, ErrRemoteCall)
}

func TestSettings_Normalized(t *testing.T) {
	s := Settings{}.Normalized()
	assert.Equal(t, DefaultBaseURL, s.BaseURL)
	assert.Equal(t, DefaultModel, s.Model)
	assert.Equal(t, DefaultTemperature, s.Temperature)
	assert.Equal(t, DefaultMaxTokens, s.MaxTokens)

	s = Settings{Temperature: 1.5, MaxTokens: 4000}.Normalized()
	assert.Equal(t, MaxTemperature, s.Temperature)
	assert.Equal(t, MaxMaxTokens, s.MaxTokens)

	s = Settings{Temperature: 0.1, MaxTokens: 10}.Normalized()
	assert.Equal(t, MinTemperature, s.Temperature)
	assert.Equal(t, MinMaxTokens, s.MaxTokens)
}

func TestCountTokens(t *testing.T) {
	n, err := CountTokens(testPayload())
	require.NoError(t, err)
	assert.Greater(t, n, 2)
}
