package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestOpenSetGet(t *testing.T) {
	store, err := Open(OpenOptions{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	if err := store.SetString(KeyAPIToken, "tok-123"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, found, err := store.GetString(KeyAPIToken)
	if err != nil || !found || val != "tok-123" {
		t.Errorf("get: val=%q found=%v err=%v", val, found, err)
	}

	_, found, err = store.GetString("missing.key")
	if err != nil || found {
		t.Errorf("missing key: found=%v err=%v", found, err)
	}
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	if k, err := ParseKey(hex.EncodeToString(raw)); err != nil || len(k) != 32 {
		t.Errorf("hex key: len=%d err=%v", len(k), err)
	}
	if k, err := ParseKey(base64.StdEncoding.EncodeToString(raw)); err != nil || len(k) != 32 {
		t.Errorf("base64 key: len=%d err=%v", len(k), err)
	}
	if k, err := ParseKey(""); err != nil || k != nil {
		t.Errorf("empty key should be (nil, nil): %v %v", k, err)
	}
	if _, err := ParseKey(hex.EncodeToString(raw[:16])); err == nil {
		t.Error("short key must be rejected")
	}
	if _, err := ParseKey("not-a-key"); err == nil {
		t.Error("garbage key must be rejected")
	}
}
