package api

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText extracts the visible text of an HTML document, dropping
// script/style content and collapsing runs of whitespace. Non-HTML input
// passes through mostly untouched since the tokenizer treats it as text.
func HTMLToText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)

	var b strings.Builder
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return collapseWhitespace(b.String()), nil
			}
			return "", fmt.Errorf("parsing html: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func skipTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "head":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
