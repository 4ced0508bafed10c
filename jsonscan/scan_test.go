package jsonscan

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	return v
}

func TestFindURLRefsNested(t *testing.T) {
	payload := decode(t, `{
		"report_url": "https://files.example.com/report.pdf",
		"meta": {
			"image_url": "http://files.example.com/chart.png",
			"title": "not a url"
		},
		"items": [
			{"download_url": "https://files.example.com/a.csv"},
			{"download_url": "https://files.example.com/b.csv"}
		]
	}`)

	refs := FindURLRefs(payload)
	if len(refs) != 4 {
		t.Fatalf("expected 4 refs, got %d: %+v", len(refs), refs)
	}

	byPath := map[string]string{}
	for _, ref := range refs {
		byPath[ref.Path] = ref.URL
	}
	if byPath["report_url"] != "https://files.example.com/report.pdf" {
		t.Errorf("missing top-level ref: %+v", byPath)
	}
	if byPath["meta.image_url"] != "http://files.example.com/chart.png" {
		t.Errorf("missing nested ref: %+v", byPath)
	}
	if byPath["items[0].download_url"] != "https://files.example.com/a.csv" {
		t.Errorf("missing array ref: %+v", byPath)
	}
	if byPath["items[1].download_url"] != "https://files.example.com/b.csv" {
		t.Errorf("missing array ref: %+v", byPath)
	}
}

func TestFindURLRefsIgnoresNonURLValues(t *testing.T) {
	payload := decode(t, `{
		"file_url": "not-a-url",
		"relative_url": "/downloads/a.pdf",
		"ftp_url": "ftp://example.com/a.pdf",
		"count_url": 42,
		"avatar": "https://example.com/unkeyed.png"
	}`)

	if refs := FindURLRefs(payload); len(refs) != 0 {
		t.Fatalf("expected no refs, got %+v", refs)
	}
}

func TestFindURLRefsArrayUnderURLKey(t *testing.T) {
	// The array elements themselves carry an index suffix, not the _url key.
	payload := decode(t, `{"gallery_url": ["https://example.com/a.png"]}`)

	if refs := FindURLRefs(payload); len(refs) != 0 {
		t.Fatalf("expected no refs, got %+v", refs)
	}
}

func TestFindString(t *testing.T) {
	payload := decode(t, `{
		"data": {
			"resultData": [
				{"json": {"body": {"run_id": "0b0c3c6e-6a88-4f5e-9a37-6f1d9c6c2ab1"}}}
			]
		}
	}`)

	if got := FindString(payload, "run_id"); got != "0b0c3c6e-6a88-4f5e-9a37-6f1d9c6c2ab1" {
		t.Fatalf("unexpected run_id: %q", got)
	}
	if got := FindString(payload, "missing"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
