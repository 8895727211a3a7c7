package canonicalize

import (
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	expected := `{"a":1,"b":2,"c":3}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	// RFC 8785 requires: {"html":"<script>alert('xss')</script> &"}
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalHash_Stable(t *testing.T) {
	a := map[string]any{"amount": 100, "currency": "USD"}
	b := map[string]any{"currency": "USD", "amount": 100}

	ha, err := CanonicalHash(a)
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	hb, err := CanonicalHash(b)
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}

	if ha != hb {
		t.Errorf("key order changed the digest: %s vs %s", ha, hb)
	}
	if !ValidHashFormat(ha) {
		t.Errorf("digest %q is not 64-char lowercase hex", ha)
	}
}

func TestChainHash_Genesis(t *testing.T) {
	h1 := ChainHash("genesis", "aa")
	h2 := ChainHash("genesis", "aa")
	if h1 != h2 {
		t.Errorf("chain hash not deterministic")
	}
	if h1 == ChainHash("genesis", "ab") {
		t.Errorf("distinct proof hashes produced identical chain hash")
	}
}

func TestValidHashFormat(t *testing.T) {
	if ValidHashFormat("ABC") {
		t.Error("short uppercase string accepted")
	}
	if ValidHashFormat(HashBytes([]byte("x"))[:63] + "G") {
		t.Error("non-hex character accepted")
	}
	if !ValidHashFormat(HashBytes([]byte("x"))) {
		t.Error("real digest rejected")
	}
}
