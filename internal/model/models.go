// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// MODEL CATALOG
// =============================================================================

// ModelInfo describes a provider model the client knows about.
type ModelInfo struct {
	ID          string
	Name        string
	Description string
}

// DefaultModelID is the model given to new conversations when nothing else is configured.
const DefaultModelID = "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B"

// Models is the built-in catalog, in display order.
var Models = []ModelInfo{
	{
		ID:          "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B",
		Name:        "DeepSeek R1 Distill Qwen 7B",
		Description: "Reasoning model distilled from DeepSeek-R1",
	},
	{
		ID:          "Qwen/Qwen2.5-7B-Instruct",
		Name:        "Qwen 2.5 7B Instruct",
		Description: "General purpose instruction-tuned model",
	},
	{
		ID:          "internlm/internlm2_5-7b-chat",
		Name:        "InternLM 2.5 7B Chat",
		Description: "Chat model with long-context support",
	},
}

// LookupModel returns the catalog entry for id.
func LookupModel(id string) (ModelInfo, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ModelIDs returns the catalog IDs in display order.
func ModelIDs() []string {
	ids := make([]string, len(Models))
	for i, m := range Models {
		ids[i] = m.ID
	}
	return ids
}
