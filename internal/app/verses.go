package app

import (
	"fmt"
	"math/rand"

	"hifdh-quest-service/internal/domain"
)

const (
	// DefaultReciter is the everyayah.com folder used when no reciter is configured.
	DefaultReciter = "Alafasy_64kbps"
	audioBaseURL   = "https://everyayah.com/data"
)

// ContentSelector narrows which verses a round may draw from. Zero values mean no bound.
type ContentSelector struct {
	SurahFrom int    `json:"surahFrom,omitempty" validate:"omitempty,min=1,max=114"`
	SurahTo   int    `json:"surahTo,omitempty" validate:"omitempty,min=1,max=114,gtefield=SurahFrom"`
	Reciter   string `json:"reciter,omitempty" validate:"omitempty,max=64"`
}

func (s ContentSelector) matches(v domain.Verse) bool {
	if s.SurahFrom > 0 && v.SurahNumber < s.SurahFrom {
		return false
	}
	if s.SurahTo > 0 && v.SurahNumber > s.SurahTo {
		return false
	}
	return true
}

// AudioURL points at the recitation of a single verse.
func AudioURL(reciter string, v domain.Verse) string {
	if reciter == "" {
		reciter = DefaultReciter
	}
	return fmt.Sprintf("%s/%s/%03d%03d.mp3", audioBaseURL, reciter, v.SurahNumber, v.AyahNumber)
}

// pickVerse draws a random verse index that matches the selector and has not
// been used in the session yet. Next/previous questions need the true
// neighbour to be in the bank, so verses without one are skipped for them.
func pickVerse(bank domain.VerseBank, used map[domain.VerseKey]struct{}, sel ContentSelector, q domain.QuestionType, rnd *rand.Rand) (int, error) {
	index := indexBank(bank)
	candidates := make([]int, 0, len(bank.Verses))
	for i, v := range bank.Verses {
		if !sel.matches(v) {
			continue
		}
		if _, ok := used[v.Key()]; ok {
			continue
		}
		if q == domain.QuestionGuessNext && neighbour(bank, index, v.Key().Next) == nil {
			continue
		}
		if q == domain.QuestionGuessPrevious && neighbour(bank, index, v.Key().Previous) == nil {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return 0, domain.ErrNoVerseAvailable
	}
	return candidates[rnd.Intn(len(candidates))], nil
}

// buildPrompt assembles the question payload around bank.Verses[idx].
func buildPrompt(bank domain.VerseBank, idx int, q domain.QuestionType, reciter string) domain.Prompt {
	if reciter == "" {
		reciter = DefaultReciter
	}
	v := bank.Verses[idx]
	p := domain.Prompt{
		Verse:    v,
		AudioURL: AudioURL(reciter, v),
		Reciter:  reciter,
	}
	if q.NeedsNeighbours() {
		index := indexBank(bank)
		p.Previous = neighbour(bank, index, v.Key().Previous)
		p.Next = neighbour(bank, index, v.Key().Next)
	}
	return p
}

func indexBank(bank domain.VerseBank) map[domain.VerseKey]int {
	index := make(map[domain.VerseKey]int, len(bank.Verses))
	for i, v := range bank.Verses {
		index[v.Key()] = i
	}
	return index
}

// neighbour returns the bank verse at step(key), nil when the bank lacks it.
func neighbour(bank domain.VerseBank, index map[domain.VerseKey]int, step func() (domain.VerseKey, bool)) *domain.Verse {
	key, ok := step()
	if !ok {
		return nil
	}
	i, ok := index[key]
	if !ok {
		return nil
	}
	v := bank.Verses[i]
	return &v
}
