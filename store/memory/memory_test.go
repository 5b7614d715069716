package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linkgate/linkgate/gate"
	"github.com/linkgate/linkgate/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, NewStore())
}

func TestGetReturnsClone(t *testing.T) {
	store := NewStore()
	if err := store.Create(gate.Session{
		Token:            "tok-1",
		ProofHash:        []byte{1, 2, 3},
		CreatedAt:        time.Now(),
		AllowedAddresses: []string{"1.2.3.4"},
		MaxAddresses:     3,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _, _ := store.Get("tok-1")
	got.ProofHash[0] = 9
	got.AllowedAddresses[0] = "changed"

	again, _, _ := store.Get("tok-1")
	if again.ProofHash[0] != 1 {
		t.Fatal("caller mutation leaked into the store")
	}
	if again.AllowedAddresses[0] != "1.2.3.4" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	store := NewStore()
	if err := store.Create(gate.Session{
		Token:        "tok-1",
		CreatedAt:    time.Now(),
		MaxAddresses: 3,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const goroutines = 16
	const perGoroutine = 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := store.Update("tok-1", func(s *gate.Session) error {
					s.CheckCount++
					return nil
				})
				if err != nil {
					t.Errorf("Update: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, _, _ := store.Get("tok-1")
	if want := uint64(goroutines * perGoroutine); got.CheckCount != want {
		t.Fatalf("got CheckCount %d, want %d", got.CheckCount, want)
	}
}

func TestConcurrentCreates(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				token := fmt.Sprintf("tok-%d-%d", g, i)
				if err := store.Create(gate.Session{Token: token, CreatedAt: time.Now()}); err != nil {
					t.Errorf("Create %s: %v", token, err)
				}
			}
		}(g)
	}
	wg.Wait()

	count := 0
	store.ForEach(func(gate.Session) bool {
		count++
		return true
	})
	if count != 160 {
		t.Fatalf("got %d sessions, want 160", count)
	}
}
