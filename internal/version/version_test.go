package appversion_test

import (
	"runtime"
	"strings"
	"testing"

	appversion "github.com/dantte-lp/gond/internal/version"
)

func TestFull(t *testing.T) {
	t.Parallel()

	out := appversion.Full("gond")
	for _, want := range []string{"gond " + appversion.Version, "commit:", "built:", runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("Full() = %q, missing %q", out, want)
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	info := appversion.Get("gondctl")
	if info.Binary != "gondctl" || info.Version != appversion.Version || info.GoVersion != runtime.Version() {
		t.Errorf("Get() = %+v", info)
	}
}
