package market

import (
	"strings"
	"testing"

	"breakout_trading/internal/models"
)

func TestClientOrderIDRoundTrip(t *testing.T) {
	kinds := []models.OrderKind{
		models.KindEntry, models.KindClose, models.KindPyramid, models.KindIOC,
	}
	for _, kind := range kinds {
		id := NewClientOrderID(kind)
		if !strings.HasPrefix(id, string(kind)+"-") {
			t.Errorf("%s: id %q missing kind prefix", kind, id)
		}
		if got := KindOfClientOrderID(id); got != kind {
			t.Errorf("%s: recovered %s from %q", kind, got, id)
		}
	}
}

func TestClientOrderIDsAreUnique(t *testing.T) {
	a := NewClientOrderID(models.KindEntry)
	b := NewClientOrderID(models.KindEntry)
	if a == b {
		t.Errorf("two ids collided: %q", a)
	}
}

func TestKindOfForeignClientOrderID(t *testing.T) {
	cases := []string{"", "manual", "web-abc123", "ENTRY"}
	for _, id := range cases {
		if got := KindOfClientOrderID(id); got != models.KindLimit {
			t.Errorf("%q: expected neutral %s, got %s", id, models.KindLimit, got)
		}
	}
}
