package mem_test

import (
	"testing"

	"github.com/epochal/ges"
	"github.com/epochal/ges/internal/storetest"
	"github.com/epochal/ges/stores/mem"
)

func TestStore_Compliance(t *testing.T) {
	t.Parallel()
	storetest.Run[int64](t, func(t *testing.T) ges.EventRepository[int64] {
		t.Helper()
		return mem.New()
	})
}
