package transport

import "testing"

func TestTransportParametersRoundTrip(t *testing.T) {
	params := DefaultParameters()
	params.MaxIdleTimeout = 45000
	params.InitialMaxStreamsBidi = 17
	params.DisableActiveMigration = true

	initialSCID := []byte{1, 2, 3, 4}
	odcid := []byte{0xaa, 0xbb, 0xcc}

	raw := encodeTransportParameters(params, initialSCID, odcid)
	dec, err := decodeTransportParameters(raw)
	if err != nil {
		t.Fatalf("decodeTransportParameters: %v", err)
	}
	if dec.params != params {
		t.Fatalf("decoded params = %+v, want %+v", dec.params, params)
	}
	if string(dec.initialSourceCID) != string(initialSCID) {
		t.Fatalf("initialSourceCID = %x, want %x", dec.initialSourceCID, initialSCID)
	}
	if !dec.hasOriginalDestinationCID || string(dec.originalDestinationCID) != string(odcid) {
		t.Fatalf("originalDestinationCID = %x, want %x", dec.originalDestinationCID, odcid)
	}
}

func TestTransportParametersUnknownIDSkipped(t *testing.T) {
	params := DefaultParameters()
	raw := encodeTransportParameters(params, []byte{9}, nil)
	raw = appendTPBytes(raw, 0xff00, []byte("vendor extension"))

	dec, err := decodeTransportParameters(raw)
	if err != nil {
		t.Fatalf("decodeTransportParameters with unknown id: %v", err)
	}
	if dec.params.InitialMaxData != params.InitialMaxData {
		t.Fatalf("unknown parameter corrupted decoding: got %+v", dec.params)
	}
}

func TestTransportParametersTruncated(t *testing.T) {
	raw := encodeTransportParameters(DefaultParameters(), []byte{1}, nil)
	for _, cut := range []int{1, len(raw) / 2, len(raw) - 1} {
		if _, err := decodeTransportParameters(raw[:cut]); err == nil {
			t.Fatalf("expected error decoding truncated input at %d bytes", cut)
		}
	}
}

func TestTransportParametersNoOriginalDestinationFromClient(t *testing.T) {
	raw := encodeTransportParameters(DefaultParameters(), []byte{1, 2}, nil)
	dec, err := decodeTransportParameters(raw)
	if err != nil {
		t.Fatalf("decodeTransportParameters: %v", err)
	}
	if dec.hasOriginalDestinationCID {
		t.Fatal("client-sent transport parameters should not carry original_destination_connection_id")
	}
}
