package ndapi_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	ndapi "github.com/dantte-lp/gond/internal/api"
)

func TestCodecName(t *testing.T) {
	t.Parallel()

	if got := ndapi.Codec().Name(); got != "json" {
		t.Errorf("Name() = %q, want %q", got, "json")
	}
}

func TestCodecFieldNames(t *testing.T) {
	t.Parallel()

	b, err := ndapi.Codec().Marshal(&ndapi.AddNeighborRequest{
		Addr:      "fe80::1",
		Interface: 2,
		LinkAddr:  "02:00:00:00:00:01",
		Static:    true,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"addr":"fe80::1","interface":2,"link_addr":"02:00:00:00:00:01","static":true}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestCodecUnmarshal(t *testing.T) {
	t.Parallel()

	codec := ndapi.Codec()

	var got ndapi.ListNeighborsRequest
	if err := codec.Unmarshal([]byte(`{"interface":3,"state":"Stale"}`), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(ndapi.ListNeighborsRequest{Interface: 3, State: "Stale"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	var empty ndapi.FlushNeighborsRequest
	if err := codec.Unmarshal(nil, &empty); err != nil {
		t.Errorf("Unmarshal(empty) = %v, want nil", err)
	}

	if err := codec.Unmarshal([]byte(`{"interface":"x"}`), &got); err == nil {
		t.Error("Unmarshal(bad type) = nil, want error")
	}
}
