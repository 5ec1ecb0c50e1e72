// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

import "strings"

// lexer tokenizes an MC5 declaration text. Reads are one-token
// rewindable via mark/reset on the cursor position, which is all the
// speculative trailing-comment harvest in §4.5.4 needs.
type lexer struct {
	text string
	pos  int
}

func newLexer(text string) *lexer {
	return &lexer{text: text}
}

func (l *lexer) mark() int {
	return l.pos
}

func (l *lexer) reset(mark int) {
	l.pos = mark
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isDelim(c byte, delims string) bool {
	return strings.IndexByte(delims, c) >= 0
}

// next returns the next token given the caller's delimiter set. If
// wantComments is false, "//...EOL" comments are silently skipped as
// if they were whitespace. If wantComments is true, a comment is
// returned as its own token (including the leading "//") instead of
// being skipped, so the caller can distinguish it from a word.
//
// ok is false at end of input.
func (l *lexer) next(delims string, wantComments bool) (tok string, ok bool) {
	for {
		for l.pos < len(l.text) && isSpace(l.text[l.pos]) {
			l.pos++
		}
		if l.pos >= len(l.text) {
			return "", false
		}
		if l.text[l.pos] == '/' && l.pos+1 < len(l.text) && l.text[l.pos+1] == '/' {
			start := l.pos
			for l.pos < len(l.text) && l.text[l.pos] != '\n' {
				l.pos++
			}
			if wantComments {
				return strings.TrimRight(l.text[start:l.pos], "\r"), true
			}
			continue
		}
		break
	}

	if isDelim(l.text[l.pos], delims) {
		c := l.text[l.pos]
		l.pos++
		return string(c), true
	}

	start := l.pos
	for l.pos < len(l.text) &&
		!isSpace(l.text[l.pos]) &&
		!isDelim(l.text[l.pos], delims) &&
		!(l.text[l.pos] == '/' && l.pos+1 < len(l.text) && l.text[l.pos+1] == '/') {
		l.pos++
	}
	return l.text[start:l.pos], true
}

func isComment(tok string) bool {
	return strings.HasPrefix(tok, "//")
}
