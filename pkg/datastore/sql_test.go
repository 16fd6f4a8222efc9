package datastore_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NicolasHaas/relaychat/pkg/datastore"
	"github.com/NicolasHaas/relaychat/pkg/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/crypto/bcrypt"
)

func NewTestSqlConn(t *testing.T) (*datastore.SQLStore, error) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := datastore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore_test: failed to open db: %w", err)
	}

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			fmt.Printf("Error closing database: %v\n", err)
		}
	})

	return st, nil
}

// withStores runs fn against a fresh SQLite store and a fresh memory store.
func withStores(t *testing.T, fn func(t *testing.T, st datastore.UserStore)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		st, err := NewTestSqlConn(t)
		if err != nil {
			t.Fatalf("failed to open test connection: %v", err)
		}
		fn(t, st)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, datastore.NewMemory())
	})
}

func TestCreateUser(t *testing.T) {
	withStores(t, func(t *testing.T, st datastore.UserStore) {
		got, err := st.CreateUser("johndoe", "hash")
		if err != nil {
			t.Fatalf("CreateUser: unexpected error: %v", err)
		}
		if got.ID == 0 {
			t.Fatalf("CreateUser: expected non-zero ID")
		}

		fetched, err := st.GetUserByUsername("johndoe")
		if err != nil {
			t.Fatalf("GetUserByUsername: unexpected error: %v", err)
		}
		want := &model.User{ID: got.ID, Username: "johndoe", PasswordHash: "hash"}
		if diff := cmp.Diff(want, fetched, cmpopts.IgnoreFields(model.User{}, "CreatedAt")); diff != "" {
			t.Errorf("GetUserByUsername mismatch (-want +got):\n%s", diff)
		}
		if time.Since(fetched.CreatedAt) > time.Minute {
			t.Errorf("GetUserByUsername: CreatedAt %v is not recent", fetched.CreatedAt)
		}
	})
}

func TestCreateUserDuplicate(t *testing.T) {
	withStores(t, func(t *testing.T, st datastore.UserStore) {
		if _, err := st.CreateUser("johndoe", "hash1"); err != nil {
			t.Fatalf("CreateUser: unexpected error: %v", err)
		}
		_, err := st.CreateUser("johndoe", "hash2")
		if !errors.Is(err, datastore.ErrUserExists) {
			t.Fatalf("CreateUser: err = %v, want ErrUserExists", err)
		}

		// The first record is untouched.
		u, err := st.GetUserByUsername("johndoe")
		if err != nil {
			t.Fatalf("GetUserByUsername: unexpected error: %v", err)
		}
		if u.PasswordHash != "hash1" {
			t.Errorf("PasswordHash = %q, want %q", u.PasswordHash, "hash1")
		}
	})
}

func TestGetUserByUsernameMissing(t *testing.T) {
	withStores(t, func(t *testing.T, st datastore.UserStore) {
		u, err := st.GetUserByUsername("nobody")
		if err != nil {
			t.Fatalf("GetUserByUsername: unexpected error: %v", err)
		}
		if u != nil {
			t.Fatalf("GetUserByUsername: expected nil, got %+v", u)
		}
	})
}

func TestListUsers(t *testing.T) {
	withStores(t, func(t *testing.T, st datastore.UserStore) {
		for _, name := range []string{"carol", "alice", "bob"} {
			if _, err := st.CreateUser(name, "h"); err != nil {
				t.Fatalf("CreateUser(%q): unexpected error: %v", name, err)
			}
		}
		users, err := st.ListUsers()
		if err != nil {
			t.Fatalf("ListUsers: unexpected error: %v", err)
		}
		var names []string
		for _, u := range users {
			names = append(names, u.Username)
		}
		if diff := cmp.Diff([]string{"carol", "alice", "bob"}, names); diff != "" {
			t.Errorf("ListUsers order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestReopenKeepsUsers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	st, err := datastore.Open(dbPath)
	if err != nil {
		t.Fatalf("Open: unexpected error: %v", err)
	}
	if _, err := st.CreateUser("alice", "h"); err != nil {
		t.Fatalf("CreateUser: unexpected error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}

	st, err = datastore.Open(dbPath)
	if err != nil {
		t.Fatalf("Open (second): unexpected error: %v", err)
	}
	defer func() { _ = st.Close() }()

	u, err := st.GetUserByUsername("alice")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername after reopen: user=%v err=%v", u, err)
	}
}

func TestCredentials(t *testing.T) {
	withStores(t, func(t *testing.T, st datastore.UserStore) {
		creds := datastore.NewCredentials(st, bcrypt.MinCost)

		ok, err := creds.Register("alice", "pass1234")
		if err != nil || !ok {
			t.Fatalf("Register: ok=%v err=%v, want true, nil", ok, err)
		}
		ok, err = creds.Register("alice", "other")
		if err != nil || ok {
			t.Fatalf("Register duplicate: ok=%v err=%v, want false, nil", ok, err)
		}

		u, err := st.GetUserByUsername("alice")
		if err != nil {
			t.Fatalf("GetUserByUsername: unexpected error: %v", err)
		}
		if u.PasswordHash == "pass1234" {
			t.Fatalf("password stored in clear text")
		}

		tcases := map[string]struct {
			username string
			password string
			want     bool
		}{
			"correct":        {"alice", "pass1234", true},
			"wrong_password": {"alice", "pass12345", false},
			"unknown_user":   {"bob", "pass1234", false},
			"second_try":     {"alice", "other", false},
		}
		for name, tc := range tcases {
			got, err := creds.Authenticate(tc.username, tc.password)
			if err != nil {
				t.Fatalf("%s: Authenticate: unexpected error: %v", name, err)
			}
			if got != tc.want {
				t.Errorf("%s: Authenticate(%q, %q) = %v, want %v", name, tc.username, tc.password, got, tc.want)
			}
		}
	})
}

func TestCredentialsConcurrentRegister(t *testing.T) {
	withStores(t, func(t *testing.T, st datastore.UserStore) {
		creds := datastore.NewCredentials(st, bcrypt.MinCost)

		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := creds.Register("racer", "pass1234")
				if err != nil {
					t.Errorf("Register: unexpected error: %v", err)
					return
				}
				if ok {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Fatalf("concurrent Register: %d winners, want 1", winners)
		}
	})
}
