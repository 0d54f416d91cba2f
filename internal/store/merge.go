/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"encoding/json"
	"time"
)

type recordHeader struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func decodeList(data []byte) ([]json.RawMessage, []recordHeader, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, false
	}

	headers := make([]recordHeader, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &headers[i]); err != nil || headers[i].ID == "" {
			return nil, nil, false
		}
	}
	return items, headers, true
}

// mergeLists combines two JSON arrays of records keyed by "id". Remote order
// is kept, a record present on both sides takes the copy with the newer
// "updated_at" (local on ties), and local-only records are appended. ok is
// false when either side is not a list of identified records.
func mergeLists(remote, local []byte) (merged []byte, ok bool) {
	rItems, rHeaders, ok := decodeList(remote)
	if !ok {
		return nil, false
	}
	lItems, lHeaders, ok := decodeList(local)
	if !ok {
		return nil, false
	}

	localIndex := make(map[string]int, len(lHeaders))
	for i, h := range lHeaders {
		localIndex[h.ID] = i
	}

	out := make([]json.RawMessage, 0, len(rItems)+len(lItems))
	seen := make(map[string]bool, len(rItems))

	for i, h := range rHeaders {
		seen[h.ID] = true

		j, inLocal := localIndex[h.ID]
		if inLocal && !lHeaders[j].UpdatedAt.Before(h.UpdatedAt) {
			out = append(out, lItems[j])
			continue
		}
		out = append(out, rItems[i])
	}

	for j, h := range lHeaders {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, lItems[j])
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, false
	}
	return data, true
}
