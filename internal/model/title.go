// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// TitleCutoff is the number of runes kept when a title is derived.
const TitleCutoff = 20

// TitleEllipsis marks a truncated title.
const TitleEllipsis = "..."

// DefaultTitle is the title of a conversation before its first message.
const DefaultTitle = "untitled"

// DeriveTitle computes a display title from the first user message.
// Text longer than TitleCutoff runes is cut to TitleCutoff runes followed by
// TitleEllipsis; shorter text is returned unchanged.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleCutoff {
		return text
	}
	return string(runes[:TitleCutoff]) + TitleEllipsis
}
