package aggregate

import (
	"testing"

	"github.com/aristath/reportagg/internal/reporting"
)

func mustFingerprint(t *testing.T, title string, producers ...reporting.Producer) string {
	t.Helper()
	fp, err := Fingerprint(title, producers)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	return fp
}

func TestFingerprint(t *testing.T) {
	toggle := reporting.NewToggle(false)
	a := producer("a:test", "", slot("html", "a.html", nil), slot("xml", "a.xml", toggle.Enabled))
	b := producer("b:test", "", slot("html", "b.html", nil))

	base := mustFingerprint(t, "Tests", a, b)

	if got := mustFingerprint(t, "Tests", a, b); got != base {
		t.Errorf("fingerprint not stable: %s vs %s", base, got)
	}

	// Locations do not take part
	moved := producer("b:test", "", slot("html", "elsewhere/b.html", nil))
	if got := mustFingerprint(t, "Tests", a, moved); got != base {
		t.Errorf("location change altered fingerprint")
	}

	if got := mustFingerprint(t, "Tests", b, a); got == base {
		t.Errorf("producer order change did not alter fingerprint")
	}
	if got := mustFingerprint(t, "Other", a, b); got == base {
		t.Errorf("title change did not alter fingerprint")
	}
	if got := mustFingerprint(t, "Tests", a); got == base {
		t.Errorf("removing a producer did not alter fingerprint")
	}

	toggle.Set(true)
	if got := mustFingerprint(t, "Tests", a, b); got == base {
		t.Errorf("enabling a slot did not alter fingerprint")
	}
}
