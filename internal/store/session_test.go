package store

import (
	"testing"
	"time"
)

func setupSessionTestDB(t *testing.T) (*SessionStore, *UserStore) {
	t.Helper()
	db := setupTestDB(t)
	return NewSessionStore(db), NewUserStore(db)
}

func TestSessionCreate(t *testing.T) {
	ss, us := setupSessionTestDB(t)

	u, err := us.Create("alice@example.com", "alice", "Alice", "Smith", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sess, err := ss.Create(u.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 40 { // 20 bytes hex-encoded
		t.Errorf("token length = %d, want 40", len(sess.Token))
	}
	if sess.UserID != u.ID {
		t.Errorf("user_id = %d, want %d", sess.UserID, u.ID)
	}
}

func TestSessionGetByToken(t *testing.T) {
	ss, us := setupSessionTestDB(t)

	u, _ := us.Create("alice@example.com", "alice", "Alice", "Smith", "pw")
	created, _ := ss.Create(u.ID, time.Hour)

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != created.ID {
		t.Errorf("id = %d, want %d", sess.ID, created.ID)
	}
}

func TestSessionGetByTokenExpired(t *testing.T) {
	ss, us := setupSessionTestDB(t)

	u, _ := us.Create("alice@example.com", "alice", "Alice", "Smith", "pw")
	created, _ := ss.Create(u.ID, -time.Hour)

	sess, err := ss.GetByToken(created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for expired session")
	}
}

func TestSessionGetByTokenUnknown(t *testing.T) {
	ss, _ := setupSessionTestDB(t)

	sess, err := ss.GetByToken("does-not-exist")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestSessionDelete(t *testing.T) {
	ss, us := setupSessionTestDB(t)

	u, _ := us.Create("alice@example.com", "alice", "Alice", "Smith", "pw")
	created, _ := ss.Create(u.ID, time.Hour)

	if err := ss.Delete(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sess, _ := ss.GetByToken(created.Token)
	if sess != nil {
		t.Error("expected session to be deleted")
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	ss, us := setupSessionTestDB(t)

	u, _ := us.Create("alice@example.com", "alice", "Alice", "Smith", "pw")
	ss.Create(u.ID, -time.Hour)
	ss.Create(u.ID, -time.Minute)
	live, _ := ss.Create(u.ID, time.Hour)

	n, err := ss.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if sess, _ := ss.GetByToken(live.Token); sess == nil {
		t.Error("expected live session to survive")
	}
}

func TestSessionDeleteByUserID(t *testing.T) {
	ss, us := setupSessionTestDB(t)

	alice, _ := us.Create("alice@example.com", "alice", "Alice", "Smith", "pw")
	bob, _ := us.Create("bob@example.com", "bob", "Bob", "Jones", "pw")
	a1, _ := ss.Create(alice.ID, time.Hour)
	b1, _ := ss.Create(bob.ID, time.Hour)

	if err := ss.DeleteByUserID(alice.ID); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if sess, _ := ss.GetByToken(a1.Token); sess != nil {
		t.Error("expected alice's session to be deleted")
	}
	if sess, _ := ss.GetByToken(b1.Token); sess == nil {
		t.Error("expected bob's session to survive")
	}
}
