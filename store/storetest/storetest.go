// Package storetest provides the common conformance suite for gate.Store
// implementations.
package storetest

import (
	"errors"
	"testing"
	"time"

	"github.com/linkgate/linkgate/gate"
)

func session(token, key string) gate.Session {
	return gate.Session{
		Token:            token,
		Key:              key,
		ProofHash:        []byte("0123456789abcdef0123456789abcdef"),
		CreatedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		OwnerAddress:     "1.2.3.4",
		AllowedAddresses: []string{"1.2.3.4"},
		MaxAddresses:     3,
	}
}

// Run exercises the gate.Store contract against any implementation.
func Run(t *testing.T, store gate.Store) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		if err := store.Create(session("tok-1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok, err := store.Get("tok-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatal("expected to find session")
		}
		if got.Token != "tok-1" {
			t.Fatalf("got token %q, want %q", got.Token, "tok-1")
		}
		if got.OwnerAddress != "1.2.3.4" {
			t.Fatalf("got owner %q, want %q", got.OwnerAddress, "1.2.3.4")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := store.Get("no-such-token")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Fatal("expected not found for missing token")
		}
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		if err := store.Create(session("tok-dup", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		err := store.Create(session("tok-dup", ""))
		if !errors.Is(err, gate.ErrTokenExists) {
			t.Fatalf("got %v, want ErrTokenExists", err)
		}
	})

	t.Run("CreateWithTakenKey", func(t *testing.T) {
		if err := store.Create(session("tok-ck-1", "KEYCREATE")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		err := store.Create(session("tok-ck-2", "KEYCREATE"))
		if !errors.Is(err, gate.ErrKeyTaken) {
			t.Fatalf("got %v, want ErrKeyTaken", err)
		}
		// The rejected session must not exist and the index must still
		// point at the first owner.
		if _, ok, _ := store.Get("tok-ck-2"); ok {
			t.Fatal("rejected create must not insert the session")
		}
		got, ok, _ := store.FindByKey("KEYCREATE")
		if !ok || got.Token != "tok-ck-1" {
			t.Fatalf("key index disturbed: ok=%v token=%q", ok, got.Token)
		}
	})

	t.Run("FindByKey", func(t *testing.T) {
		if err := store.Create(session("tok-fbk", "KEYFBK")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok, err := store.FindByKey("KEYFBK")
		if err != nil {
			t.Fatalf("FindByKey: %v", err)
		}
		if !ok {
			t.Fatal("expected to find session by key")
		}
		if got.Token != "tok-fbk" {
			t.Fatalf("got token %q, want %q", got.Token, "tok-fbk")
		}

		_, ok, err = store.FindByKey("NOSUCHKEY")
		if err != nil {
			t.Fatalf("FindByKey: %v", err)
		}
		if ok {
			t.Fatal("expected not found for unknown key")
		}
	})

	t.Run("UpdateMutates", func(t *testing.T) {
		if err := store.Create(session("tok-upd", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		updated, err := store.Update("tok-upd", func(s *gate.Session) error {
			s.CheckCount++
			s.AllowedAddresses = append(s.AllowedAddresses, "5.6.7.8")
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.CheckCount != 1 {
			t.Fatalf("got CheckCount %d, want 1", updated.CheckCount)
		}

		got, ok, err := store.Get("tok-upd")
		if err != nil || !ok {
			t.Fatalf("Get after Update: ok=%v err=%v", ok, err)
		}
		if got.CheckCount != 1 {
			t.Fatal("update was not persisted")
		}
		if len(got.AllowedAddresses) != 2 {
			t.Fatalf("got %d addresses, want 2", len(got.AllowedAddresses))
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		_, err := store.Update("no-such-token", func(s *gate.Session) error { return nil })
		if !errors.Is(err, gate.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateMutatorErrorAborts", func(t *testing.T) {
		if err := store.Create(session("tok-abort", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		boom := errors.New("boom")
		_, err := store.Update("tok-abort", func(s *gate.Session) error {
			s.CheckCount = 99
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want the mutator error", err)
		}
		got, _, _ := store.Get("tok-abort")
		if got.CheckCount != 0 {
			t.Fatal("failed update must leave the session untouched")
		}
	})

	t.Run("UpdateBindsKey", func(t *testing.T) {
		if err := store.Create(session("tok-bind", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err := store.Update("tok-bind", func(s *gate.Session) error {
			s.Key = "KEYBIND"
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, ok, err := store.FindByKey("KEYBIND")
		if err != nil || !ok {
			t.Fatalf("FindByKey after bind: ok=%v err=%v", ok, err)
		}
		if got.Token != "tok-bind" {
			t.Fatalf("key index points at %q, want %q", got.Token, "tok-bind")
		}
	})

	t.Run("KeyTaken", func(t *testing.T) {
		if err := store.Create(session("tok-kt-1", "KEYTAKEN")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Create(session("tok-kt-2", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err := store.Update("tok-kt-2", func(s *gate.Session) error {
			s.Key = "KEYTAKEN"
			return nil
		})
		if !errors.Is(err, gate.ErrKeyTaken) {
			t.Fatalf("got %v, want ErrKeyTaken", err)
		}
		// The loser must remain unverified.
		got, _, _ := store.Get("tok-kt-2")
		if got.Key != "" {
			t.Fatal("rejected update must not bind the key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Create(session("tok-del", "KEYDEL")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Delete("tok-del"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, _ := store.Get("tok-del"); ok {
			t.Fatal("expected session to be deleted")
		}
		if _, ok, _ := store.FindByKey("KEYDEL"); ok {
			t.Fatal("expected key index entry to be deleted")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := store.Delete("never-existed"); err != nil {
			t.Fatalf("Delete of missing token must be a no-op, got %v", err)
		}
	})

	t.Run("ForEach", func(t *testing.T) {
		if err := store.Create(session("tok-fe-1", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Create(session("tok-fe-2", "")); err != nil {
			t.Fatalf("Create: %v", err)
		}

		seen := map[string]bool{}
		err := store.ForEach(func(s gate.Session) bool {
			seen[s.Token] = true
			return true
		})
		if err != nil {
			t.Fatalf("ForEach: %v", err)
		}
		if !seen["tok-fe-1"] || !seen["tok-fe-2"] {
			t.Fatalf("walk missed sessions: %v", seen)
		}

		// Returning false stops the walk early.
		visits := 0
		err = store.ForEach(func(s gate.Session) bool {
			visits++
			return false
		})
		if err != nil {
			t.Fatalf("ForEach: %v", err)
		}
		if visits != 1 {
			t.Fatalf("got %d visits after early stop, want 1", visits)
		}
	})
}
