package protocol

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	want := Build{JobID: "job-1", CommitHash: "deadbeef", RemoteURL: "https://example.com/repo.git"}

	raw, err := Encode(TypeBuild, want)
	if err != nil {
		t.Fatalf("Encode(TypeBuild, want) = error %v", err)
	}

	gotType, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode(raw) = error %v", err)
	}
	if gotType != TypeBuild {
		t.Fatalf("Decode(raw) type = %q, want %q", gotType, TypeBuild)
	}

	got, err := DecodePayload[Build](payload)
	if err != nil {
		t.Fatalf("DecodePayload[Build](payload) = error %v", err)
	}
	if got != want {
		t.Fatalf("DecodePayload[Build](payload) = %+v, want %+v", got, want)
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	t.Parallel()

	if _, _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("Decode(not json) = nil error, want non-nil")
	}
}

func TestConfigAnnounceAckRoundTrip(t *testing.T) {
	t.Parallel()

	want := ConfigAnnounceAck{BoardConfigIDs: map[string]string{"board-a/cfg-a": "bc-uuid-1"}}

	raw, err := Encode(TypeConfigAnnounceAck, want)
	if err != nil {
		t.Fatalf("Encode(TypeConfigAnnounceAck, want) = error %v", err)
	}

	gotType, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode(raw) = error %v", err)
	}
	if gotType != TypeConfigAnnounceAck {
		t.Fatalf("Decode(raw) type = %q, want %q", gotType, TypeConfigAnnounceAck)
	}

	got, err := DecodePayload[ConfigAnnounceAck](payload)
	if err != nil {
		t.Fatalf("DecodePayload[ConfigAnnounceAck](payload) = error %v", err)
	}
	if got.BoardConfigIDs["board-a/cfg-a"] != want.BoardConfigIDs["board-a/cfg-a"] {
		t.Fatalf("DecodePayload[ConfigAnnounceAck](payload) = %+v, want %+v", got, want)
	}
}
