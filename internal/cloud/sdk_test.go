// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/errs"
)

func newTestSDKClient(url string) *SDKClient {
	client, _ := newHookedSDKClient(url)
	return client
}

func newHookedSDKClient(url string) (*SDKClient, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewSDKClient(Options{BaseURL: url, APIKey: "sk-test", MaxRetries: -1, Logger: logger}), hook
}

func TestSDKClient_StreamDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("Hel"))
		io.WriteString(w, sseChunk("lo"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	stream, err := newTestSDKClient(server.URL).Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"Hel", "lo"}, collect(t, stream))
	assert.NoError(t, stream.Err())
}

func TestSDKClient_SkipsMalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("Hel"))
		io.WriteString(w, "data: {not json\n\n")
		io.WriteString(w, sseChunk("lo"))
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, hook := newHookedSDKClient(server.URL)
	stream, err := client.Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"Hel", "lo"}, collect(t, stream))
	assert.NoError(t, stream.Err())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "malformed") {
			warned = true
		}
	}
	assert.True(t, warned, "malformed chunk should be logged")
}

func TestSDKClient_InStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseChunk("partial"))
		io.WriteString(w, "data: {\"error\":{\"message\":\"model overloaded\",\"code\":\"overloaded\"}}\n\n")
	}))
	defer server.Close()

	stream, err := newTestSDKClient(server.URL).Stream(context.Background(), testRequest())
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"partial"}, collect(t, stream))

	var pe *errs.ProviderError
	require.True(t, errors.As(stream.Err(), &pe), "err = %v", stream.Err())
	assert.Equal(t, "model overloaded", pe.Message)
}

func TestSDKClient_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Invalid token","type":"auth","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	_, err := newTestSDKClient(server.URL).Stream(context.Background(), testRequest())

	var pe *errs.ProviderError
	require.True(t, errors.As(err, &pe), "err = %v", err)
	assert.Equal(t, 401, pe.StatusCode)
}

func TestSDKClient_EmptyRequest(t *testing.T) {
	_, err := newTestSDKClient("http://127.0.0.1:1").Stream(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyRequest)
}
