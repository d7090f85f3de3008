package sha256

import "testing"

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("<html>kérdés</html>"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
	again, _ := h.Hash([]byte("<html>kérdés</html>"))
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
	empty, _ := h.Hash(nil)
	if empty != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected digest of empty input: %s", empty)
	}
}
