package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"qms/internal/models"
)

func TestTokenStoreCreateGetUpdate(t *testing.T) {
	st, err := NewTokenStore(nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	created := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	if err := st.Create(models.Token{ID: "t1", TicketNumber: "D-001", ServiceID: "s1", Status: models.StatusWaiting, CreatedAt: created}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Create(models.Token{ID: "t1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate id to fail validation, got %v", err)
	}

	updated, err := st.Update("t1", func(token models.Token) (models.Token, error) {
		token.Status = models.StatusCancelled
		return token, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.StatusCancelled {
		t.Fatalf("unexpected status %s", updated.Status)
	}

	got, err := st.Get("t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusCancelled {
		t.Fatalf("update not stored: %+v", got)
	}
}

func TestTokenStoreUnknownID(t *testing.T) {
	st, _ := NewTokenStore(nil)
	if _, err := st.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err := st.Update("missing", func(token models.Token) (models.Token, error) { return token, nil })
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected token not found, got %v", err)
	}
}

func TestTokenStoreFailedPatchLeavesTokenUntouched(t *testing.T) {
	st, _ := NewTokenStore([]models.Token{{ID: "t1", Status: models.StatusWaiting}})
	boom := errors.New("boom")
	_, err := st.Update("t1", func(token models.Token) (models.Token, error) {
		token.Status = models.StatusCalled
		return token, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected patch error, got %v", err)
	}
	got, _ := st.Get("t1")
	if got.Status != models.StatusWaiting {
		t.Fatalf("token changed after failed patch: %+v", got)
	}
}

func TestTokenStoreGetReturnsCopy(t *testing.T) {
	called := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	st, _ := NewTokenStore([]models.Token{{ID: "t1", CalledAt: &called}})
	got, _ := st.Get("t1")
	*got.CalledAt = called.Add(time.Hour)
	again, _ := st.Get("t1")
	if !again.CalledAt.Equal(called) {
		t.Fatalf("store state leaked through Get")
	}
}

func TestTokenStoreListByKeepsInsertionOrder(t *testing.T) {
	st, _ := NewTokenStore(nil)
	for i := 0; i < 5; i++ {
		_ = st.Create(models.Token{ID: fmt.Sprintf("t%d", i), ServiceID: []string{"s1", "s2"}[i%2]})
	}
	got := st.ListBy(func(token models.Token) bool { return token.ServiceID == "s1" })
	if len(got) != 3 || got[0].ID != "t0" || got[1].ID != "t2" || got[2].ID != "t4" {
		t.Fatalf("unexpected list: %+v", got)
	}
	if n := st.CountBy(func(token models.Token) bool { return token.ServiceID == "s2" }); n != 2 {
		t.Fatalf("expected 2 s2 tokens, got %d", n)
	}
}

func TestTokenStoreConcurrentCreate(t *testing.T) {
	st, _ := NewTokenStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := st.Create(models.Token{ID: fmt.Sprintf("t%d", i)}); err != nil {
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if st.Len() != 50 {
		t.Fatalf("expected 50 tokens, got %d", st.Len())
	}
}

func TestTokenStoreReplaceRejectsDuplicates(t *testing.T) {
	st, _ := NewTokenStore([]models.Token{{ID: "keep"}})
	err := st.Replace([]models.Token{{ID: "a"}, {ID: "a"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := st.Get("keep"); err != nil {
		t.Fatalf("failed replace must keep previous tokens: %v", err)
	}
}
