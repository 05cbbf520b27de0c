// Package content normalizes gateway response bodies of varying shape into a
// single canonical memo string.
package content

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when a body matches no recognized shape, or when the
// matching shape yields an empty string.
var ErrNotFound = errors.New("content: no recognized memo content")

// Rule names the shape that produced a Result.
type Rule string

const (
	RuleContent    Rule = "content"
	RuleText       Rule = "text"
	RuleNFTResults Rule = "nftResults"
	RuleChunks     Rule = "chunks"
	RuleParts      Rule = "parts"
	RulePlain      Rule = "plain"
)

// Result is the canonical content of a gateway response.
type Result struct {
	Text string
	Rule Rule
}

type shape struct {
	rule   Rule
	decode func(field gjson.Result) (string, bool)
}

// objectShapes is evaluated in order; the first field that decodes wins.
// The order is a compatibility surface and must not change.
var objectShapes = []shape{
	{RuleContent, decodeString},
	{RuleText, decodeString},
	{RuleNFTResults, decodeJoined},
	{RuleChunks, decodeJoined},
	{RuleParts, decodeJoined},
}

// Extract returns the canonical content of body.
//
// JSON objects are matched against objectShapes. A body that is a JSON string,
// or that is not JSON at all, is taken as plain text. Anything else (numbers,
// booleans, null, top-level arrays, objects without a recognized field)
// yields ErrNotFound. Invalid UTF-8 anywhere in body is replaced with U+FFFD
// before any rule is applied, so every rule hashes the same text.
func Extract(body []byte) (Result, error) {
	text := strings.ToValidUTF8(string(body), "\uFFFD")
	if !gjson.Valid(text) {
		return nonEmpty(Result{Text: text, Rule: RulePlain})
	}

	v := gjson.Parse(text)
	switch {
	case v.IsObject():
		fields := objectFields(v)
		for _, s := range objectShapes {
			f, ok := fields[string(s.rule)]
			if !ok {
				continue
			}
			if text, ok := s.decode(f); ok {
				return nonEmpty(Result{Text: text, Rule: s.rule})
			}
		}
		return Result{}, ErrNotFound
	case v.Type == gjson.String:
		return nonEmpty(Result{Text: v.Str, Rule: RulePlain})
	default:
		return Result{}, ErrNotFound
	}
}

// objectFields indexes the top-level members of an object.
// Later duplicates replace earlier ones.
func objectFields(v gjson.Result) map[string]gjson.Result {
	fields := make(map[string]gjson.Result)
	v.ForEach(func(key, value gjson.Result) bool {
		fields[key.Str] = value
		return true
	})
	return fields
}

func decodeString(f gjson.Result) (string, bool) {
	if f.Type != gjson.String {
		return "", false
	}
	return f.Str, true
}

// decodeJoined accepts only arrays whose every element is a string.
func decodeJoined(f gjson.Result) (string, bool) {
	if !f.IsArray() {
		return "", false
	}
	var b strings.Builder
	ok := true
	f.ForEach(func(_, el gjson.Result) bool {
		if el.Type != gjson.String {
			ok = false
			return false
		}
		b.WriteString(el.Str)
		return true
	})
	if !ok {
		return "", false
	}
	return b.String(), true
}

func nonEmpty(r Result) (Result, error) {
	if r.Text == "" {
		return Result{}, ErrNotFound
	}
	return r, nil
}
