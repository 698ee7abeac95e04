// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/relaychat/internal/model"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func testOptions(dir string) *Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

// testConversation has one completed reply and one that was stopped early.
func testConversation() *model.Conversation {
	conv := model.NewConversation(model.DefaultModelID)
	conv.CreatedAt = fixedNow.Add(-time.Hour)
	conv.AppendUser("What is a goroutine in Go?")

	started := fixedNow.Add(-50 * time.Minute)
	reply := conv.AppendAssistant(started)
	reply.Content = "A lightweight thread managed by the Go runtime."
	done := started.Add(1500 * time.Millisecond)
	reply.CompletedAt = &done

	conv.AppendUser("And a channel?")
	partial := conv.AppendAssistant(fixedNow.Add(-40 * time.Minute))
	partial.Content = "A typed conduit"
	return conv
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions("")).Export(testConversation())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: What is a goroutine ...\n"))
	assert.Contains(t, md, "model: deepseek-ai/DeepSeek-R1-Distill-Qwen-7B\n")
	assert.Contains(t, md, "messages: 4\n")
	assert.Contains(t, md, "generator: relaychat\n")
	assert.Contains(t, md, "# What is a goroutine ...\n")
	assert.Contains(t, md, "### [User]\n\nWhat is a goroutine in Go?")
	assert.Contains(t, md, "A lightweight thread managed by the Go runtime.")
	assert.Contains(t, md, "<sub>Completed in 1.50s</sub>")
	assert.Contains(t, md, "<sub>Incomplete</sub>")
	assert.Contains(t, md, "*Exported from relaychat on March 14, 2025 at 9:26 AM*")
}

func TestMarkdownExporter_WithoutMetadata(t *testing.T) {
	opts := testOptions("")
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(testConversation())
	require.NoError(t, err)
	md := string(out)

	assert.False(t, strings.HasPrefix(md, "---"))
	assert.NotContains(t, md, "Session Information")
	assert.NotContains(t, md, "<sub>")
}

func TestMarkdownExporter_Rejects(t *testing.T) {
	e := NewMarkdownExporter(nil)

	_, err := e.Export(nil)
	assert.Error(t, err)

	_, err = e.Export(model.NewConversation("m"))
	assert.Error(t, err)
}

func TestMarkdownExporter_EscapesTitle(t *testing.T) {
	conv := testConversation()
	conv.Title = "Test\nInjection: #1"

	out, err := NewMarkdownExporter(testOptions("")).Export(conv)
	require.NoError(t, err)
	md := string(out)

	assert.Contains(t, md, `title: "Test\nInjection: #1"`)
	assert.NotContains(t, md, "\nInjection: #1\n")
}

// =============================================================================
// JSON AND YAML
// =============================================================================

func TestJSONExporter_PersistedShape(t *testing.T) {
	conv := testConversation()
	out, err := NewJSONExporter(nil).Export(conv)
	require.NoError(t, err)

	var decoded model.Conversation
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, conv.ID, decoded.ID)
	require.Len(t, decoded.Messages, 4)
	assert.NotNil(t, decoded.Messages[1].CompletedAt)
	assert.Nil(t, decoded.Messages[3].CompletedAt)

	assert.Contains(t, string(out), `"createdAt"`)
	assert.Contains(t, string(out), `"startedAt"`)
}

func TestYAMLExporter(t *testing.T) {
	conv := testConversation()
	out, err := NewYAMLExporter(testOptions("")).Export(conv)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, conv.Title, doc["title"])
	assert.Equal(t, conv.Model, doc["model"])
	assert.Contains(t, doc, "exported")

	msgs, ok := doc["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 4)

	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
	assert.NotContains(t, first, "startedAt")

	reply := msgs[1].(map[string]interface{})
	assert.Contains(t, reply, "completedAt")
	assert.NotContains(t, msgs[3].(map[string]interface{}), "completedAt")
}

// =============================================================================
// FILES AND FORMATS
// =============================================================================

func TestForFormat(t *testing.T) {
	for name, ext := range map[string]string{
		"md": ".md", "markdown": ".md", "JSON": ".json", "yaml": ".yaml", ".yml": ".yaml",
	} {
		e, err := ForFormat(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, ext, e.FileExtension(), name)
	}

	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	conv := testConversation()

	path, err := ExportToFile(conv, NewJSONExporter(opts), opts)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, "conversation_What_is_a_goroutine_20250314_092653.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), conv.ID)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"hello world":          "hello_world",
		"a/b\\c:d":             "a-b-c-d",
		"":                     "conversation",
		"...":                  "conversation",
		"untitled":             "untitled",
		"tab\there":            "tab_here",
		"bell\x07":             "bell",
		"What is a goroutine?": "What_is_a_goroutine",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), "input %q", in)
	}
}
