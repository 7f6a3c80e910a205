package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/store"
	"github.com/ppiankov/credence/internal/store/storetest"
)

// Needs the Firestore emulator; the client picks up FIRESTORE_EMULATOR_HOST
func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		// A fresh project per subtest keeps the collections empty
		project := fmt.Sprintf("credence-test-%d", time.Now().UnixNano())
		s, err := New(context.Background(), project, nil)
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
