// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports conversations to YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

// yamlConversation mirrors model.Conversation with the persisted field names.
type yamlConversation struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Model     string        `yaml:"model"`
	CreatedAt time.Time     `yaml:"createdAt"`
	Exported  *time.Time    `yaml:"exported,omitempty"`
	Messages  []yamlMessage `yaml:"messages"`
}

type yamlMessage struct {
	ID          string     `yaml:"id"`
	Role        string     `yaml:"role"`
	Content     string     `yaml:"content"`
	StartedAt   *time.Time `yaml:"startedAt,omitempty"`
	CompletedAt *time.Time `yaml:"completedAt,omitempty"`
}

// Export converts a conversation to YAML.
func (e *YAMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	doc := yamlConversation{
		ID:        conv.ID,
		Title:     conv.Title,
		Model:     conv.Model,
		CreatedAt: conv.CreatedAt,
		Messages:  make([]yamlMessage, 0, len(conv.Messages)),
	}
	if e.options.IncludeMetadata {
		now := e.options.now()
		doc.Exported = &now
	}
	for _, m := range conv.Messages {
		doc.Messages = append(doc.Messages, yamlMessage{
			ID:          m.ID,
			Role:        m.Role.String(),
			Content:     m.Content,
			StartedAt:   m.StartedAt,
			CompletedAt: m.CompletedAt,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
