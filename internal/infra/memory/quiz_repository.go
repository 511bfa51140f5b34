package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"group-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz definitions from a backing store (Postgres, static map).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository serves validated quiz definitions from process memory and loads
// misses through a QuizLoader. Concurrent misses for one quiz share a single load.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	now    func() time.Time
	loads  singleflight.Group

	mu      sync.RWMutex
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz  domain.Quiz
	until time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]quizEntry),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}
	v, err, _ := r.loads.Do(quizID, func() (interface{}, error) {
		// a load that finished while we waited has already filled the entry
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}
		return r.load(ctx, quizID)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// Forget drops a cached definition so the next GetQuiz reloads it.
func (r *QuizRepository) Forget(quizID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, quizID)
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[quizID]
	if !ok || !r.now().Before(entry.until) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) load(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := r.loader.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	r.mu.Lock()
	r.entries[quizID] = quizEntry{quiz: quiz, until: r.now().Add(spreadTTL(r.ttl, quizID))}
	r.mu.Unlock()
	return quiz, nil
}

// spreadTTL stretches ttl by up to a tenth, derived from the quiz id, so definitions
// loaded together do not all expire together.
func spreadTTL(ttl time.Duration, quizID string) time.Duration {
	if ttl <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(quizID))
	return ttl + time.Duration(uint64(h.Sum32())%uint64(ttl/10+1))
}
