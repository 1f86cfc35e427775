package googleplay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	rpcReviews = "UsvDTd"
	sortNewest = 2
)

// Item is one review as positioned in the UsvDTd payload.
type Item struct {
	ID       string
	UserName string
	Content  string
	Score    int
	At       int64 // unix seconds
	Reply    string
}

// requestBody builds the f.req form value for one page. An empty token asks
// for the first page.
func requestBody(appID string, count int, token string) (string, error) {
	var tok any
	if token != "" {
		tok = token
	}
	inner, err := json.Marshal([]any{
		nil, nil,
		[]any{2, sortNewest, []any{count, nil, tok}, nil, []any{}},
		[]any{appID, 7},
	})
	if err != nil {
		return "", err
	}
	outer, err := json.Marshal([][][]any{{{rpcReviews, string(inner), nil, "generic"}}})
	if err != nil {
		return "", err
	}
	return string(outer), nil
}

// parsePage unwraps the batchexecute envelope and returns the page's items
// and continuation token. A response with no review payload is an empty last
// page.
func parsePage(body []byte) ([]Item, string, error) {
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, []byte(")]}'"))

	var envelope []any
	if err := json.Unmarshal(bytes.TrimSpace(body), &envelope); err != nil {
		return nil, "", fmt.Errorf("decode envelope: %w", err)
	}

	var payload string
	for _, row := range envelope {
		if str(at(row, 0)) == "wrb.fr" && str(at(row, 1)) == rpcReviews {
			payload = str(at(row, 2))
			break
		}
	}
	if payload == "" {
		return nil, "", nil
	}

	var data []any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}

	raw, _ := at(data, 0).([]any)
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, Item{
			ID:       str(at(r, 0)),
			UserName: str(at(r, 1, 0)),
			Score:    int(num(at(r, 2))),
			Content:  str(at(r, 4)),
			At:       int64(num(at(r, 5, 0))),
			Reply:    str(at(r, 7, 1)),
		})
	}
	return items, nextToken(data), nil
}

// nextToken reads data[-2][-1].
func nextToken(data []any) string {
	if len(data) < 2 {
		return ""
	}
	meta, ok := data[len(data)-2].([]any)
	if !ok || len(meta) == 0 {
		return ""
	}
	return str(meta[len(meta)-1])
}

// at: safe nested lookup by array index. Missing or mistyped steps give nil.
func at(v any, path ...int) any {
	cur := v
	for _, i := range path {
		arr, ok := cur.([]any)
		if !ok || i < 0 || i >= len(arr) {
			return nil
		}
		cur = arr[i]
	}
	return cur
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}
