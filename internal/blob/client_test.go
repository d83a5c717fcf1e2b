package blob

import (
	"bytes"
	"testing"

	"classroll/internal/apperr"
)

// pngHeader is the 8-byte PNG signature plus padding so DetectContentType
// sees a real image.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantKind apperr.Kind
	}{
		{name: "png accepted", data: pngHeader},
		{name: "jpeg accepted", data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}},
		{name: "pdf accepted", data: []byte("%PDF-1.4 fake document body")},
		{name: "empty rejected", data: nil, wantKind: apperr.KindValidation},
		{name: "plain text rejected", data: []byte("just some text, not a document"), wantKind: apperr.KindValidation},
		{name: "executable rejected", data: []byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0}, wantKind: apperr.KindValidation},
		{name: "oversized rejected", data: bytes.Repeat(pngHeader, (MaxAttachmentBytes/len(pngHeader))+1), wantKind: apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.data)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !apperr.Is(err, tt.wantKind) {
				t.Fatalf("Validate() error = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	c := New("demo", "key", "secret", "classroll/attachments")
	params := map[string]string{
		"timestamp": "1700000000",
		"api_key":   "key",
		"folder":    "classroll/attachments",
	}
	first := c.sign(params)
	second := c.sign(params)
	if first != second {
		t.Errorf("signature not deterministic: %s vs %s", first, second)
	}
	if first == "" {
		t.Error("empty signature")
	}
	// api_key must not influence the signature.
	params["api_key"] = "other"
	if c.sign(params) != first {
		t.Error("api_key leaked into signature")
	}
}
