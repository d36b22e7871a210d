package app_test

import (
	"errors"
	"testing"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

func TestBuzzerQueueAssignsRanksInReceiptOrder(t *testing.T) {
	q := app.NewBuzzerQueue(3)

	for i, id := range []string{"a", "b", "c"} {
		attempt, remaining, err := q.Submit(domain.BuzzAttempt{ParticipantID: id, ClientElapsedSeconds: float64(10 - i)})
		if err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
		if attempt.Rank != i+1 {
			t.Fatalf("expected rank %d for %s, got %d", i+1, id, attempt.Rank)
		}
		if remaining != 3-(i+1) {
			t.Fatalf("expected %d remaining slots, got %d", 3-(i+1), remaining)
		}
	}

	_, remaining, err := q.Submit(domain.BuzzAttempt{ParticipantID: "d"})
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
}

func TestBuzzerQueueRejectsDuplicates(t *testing.T) {
	q := app.NewBuzzerQueue(3)
	if _, _, err := q.Submit(domain.BuzzAttempt{ParticipantID: "a"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, _, err := q.Submit(domain.BuzzAttempt{ParticipantID: "a"}); !errors.Is(err, domain.ErrAlreadyBuzzed) {
			t.Fatalf("expected duplicate rejection, got %v", err)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", q.Len())
	}
	head, ok := q.Head()
	if !ok || head.ParticipantID != "a" || head.Rank != 1 {
		t.Fatalf("unexpected head %+v", head)
	}
}

func TestBuzzerQueueDefaultsCapacity(t *testing.T) {
	q := app.NewBuzzerQueue(0)
	if q.Capacity() != app.DefaultTotalBuzzesAllowed {
		t.Fatalf("expected default capacity, got %d", q.Capacity())
	}
}

func TestBuzzerQueueRecordsAnswers(t *testing.T) {
	q := app.NewBuzzerQueue(2)
	_, _, _ = q.Submit(domain.BuzzAttempt{ParticipantID: "a"})
	if !q.RecordAnswer("a", "Al-Ikhlas") {
		t.Fatalf("expected answer recorded")
	}
	if q.RecordAnswer("b", "An-Nas") {
		t.Fatalf("expected unknown participant refused")
	}
	attempt, _ := q.Attempt("a")
	if attempt.AnswerText != "Al-Ikhlas" {
		t.Fatalf("unexpected answer %q", attempt.AnswerText)
	}
}
