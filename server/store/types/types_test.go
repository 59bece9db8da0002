package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUidTextRoundtrip(t *testing.T) {
	uids := []Uid{1, 42, 0x1122334455667788, ^Uid(0)}
	for _, uid := range uids {
		text, err := uid.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", uid, err)
		}
		if len(text) != uidBase64Unpadded {
			t.Errorf("MarshalText(%v): expected %d chars, got %d", uid, uidBase64Unpadded, len(text))
		}
		var dec Uid
		if err := dec.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if dec != uid {
			t.Errorf("roundtrip mismatch: %v != %v", dec, uid)
		}
	}
}

func TestUidZeroMarshalsEmpty(t *testing.T) {
	text, _ := ZeroUid.MarshalText()
	if len(text) != 0 {
		t.Errorf("ZeroUid should marshal to empty string, got %q", text)
	}
}

func TestUidJSON(t *testing.T) {
	uid := Uid(0xDEADBEEF12345678)
	raw, err := json.Marshal(uid)
	if err != nil {
		t.Fatal(err)
	}
	var dec Uid
	if err := json.Unmarshal(raw, &dec); err != nil {
		t.Fatal(err)
	}
	if dec != uid {
		t.Errorf("JSON roundtrip mismatch: %v != %v", dec, uid)
	}
}

func TestParseUidInvalid(t *testing.T) {
	if uid := ParseUid("not-a-uid-at-all"); !uid.IsZero() {
		t.Errorf("expected zero uid for garbage input, got %v", uid)
	}
	if uid := ParseUid(""); !uid.IsZero() {
		t.Errorf("expected zero uid for empty input, got %v", uid)
	}
}

func TestStoreErrorComparable(t *testing.T) {
	var err error = ErrNotFound
	if err != ErrNotFound {
		t.Error("StoreError constants must be directly comparable")
	}
	if err.Error() != "not found" {
		t.Errorf("unexpected error text: %q", err.Error())
	}
}

func TestTimeNowRounded(t *testing.T) {
	now := TimeNow()
	if now.Location() != time.UTC {
		t.Error("TimeNow must return UTC")
	}
	if now.Nanosecond()%int(time.Millisecond) != 0 {
		t.Error("TimeNow must be rounded to milliseconds")
	}
}
