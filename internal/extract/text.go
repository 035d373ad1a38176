package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// VisibleText returns the whitespace-normalised text inside <body>, without
// script or style content.
func VisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return normalizeSpace(buf.String())
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if skippedTags[tag] {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if skippedTags[string(tn)] && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				buf.Write(tokenizer.Text())
				buf.WriteByte(' ')
			}
		}
	}
}

// Title returns the contents of the first <title> element.
func Title(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) != "title" {
				continue
			}
			if tokenizer.Next() == html.TextToken {
				return normalizeSpace(string(tokenizer.Text()))
			}
			return ""
		}
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
