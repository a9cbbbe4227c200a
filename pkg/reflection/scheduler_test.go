package reflection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/capture"
	"github.com/coilworks/mnemo/pkg/memory"
	testutils "github.com/coilworks/mnemo/pkg/utils/test"
)

// stubReflector records windows it was handed. Release, when set, blocks
// each call until the channel yields.
type stubReflector struct {
	mu      sync.Mutex
	calls   [][]memory.Message
	related [][]memory.Memory
	err     error
	release chan struct{}
}

func (r *stubReflector) Reflect(_ context.Context, messages []memory.Message, related []memory.Memory) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, messages)
	r.related = append(r.related, related)
	return r.err
}

func (r *stubReflector) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func turnWith(contents ...string) *capture.Turn {
	turn := &capture.Turn{}
	for i, content := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turn.Messages = append(turn.Messages, memory.Message{Role: role, Content: content})
	}
	return turn
}

var _ = Describe("Scheduler", func() {
	It("requires a reflector", func() {
		_, err := NewScheduler(Config{}, nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("dispatches a window snapshot when the threshold is crossed", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 2, NumWorkers: 1, QueueSize: 4}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("question", "answer"), "mem-1")
		s.Close()

		Expect(reflector.calls).To(HaveLen(1))
		Expect(reflector.calls[0]).To(HaveLen(2))
		Expect(reflector.calls[0][0].Content).To(Equal("question"))
	})

	It("does not dispatch below the threshold", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 5, NumWorkers: 1, QueueSize: 4}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("question", "answer"), "mem-1")
		s.Close()

		Expect(reflector.callCount()).To(BeZero())
	})

	It("resets the trigger counter after each dispatch", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 2, NumWorkers: 1, QueueSize: 8}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("q1", "a1"), "mem-1")
		s.TurnPersisted(turnWith("q2"), "mem-2")
		s.TurnPersisted(turnWith("a2"), "mem-3")
		s.Close()

		Expect(reflector.callCount()).To(Equal(2))
	})

	It("evicts the oldest messages past the window size", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 3, Threshold: 100, NumWorkers: 1, QueueSize: 4}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		s.TurnPersisted(turnWith("m1", "m2"), "mem-1")
		s.TurnPersisted(turnWith("m3", "m4"), "mem-2")
		Expect(s.WindowSize()).To(Equal(3))
	})

	It("snapshots only the retained window", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 2, Threshold: 4, NumWorkers: 1, QueueSize: 4}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("m1", "m2", "m3", "m4"), "mem-1")
		s.Close()

		Expect(reflector.calls).To(HaveLen(1))
		Expect(reflector.calls[0]).To(HaveLen(2))
		Expect(reflector.calls[0][0].Content).To(Equal("m3"))
		Expect(reflector.calls[0][1].Content).To(Equal("m4"))
	})

	It("ignores nil and empty turns", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 1, NumWorkers: 1, QueueSize: 4}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(nil, "mem-1")
		s.TurnPersisted(&capture.Turn{}, "mem-2")
		s.Close()

		Expect(reflector.callCount()).To(BeZero())
	})

	It("drops triggered reflections when the queue is full", func() {
		reflector := &stubReflector{release: make(chan struct{})}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 1, NumWorkers: 1, QueueSize: 1}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		// First dispatch occupies the worker, second fills the queue.
		s.TurnPersisted(turnWith("m1"), "mem-1")
		Eventually(func() int { return len(s.queue) }).Should(BeZero())
		s.TurnPersisted(turnWith("m2"), "mem-2")

		// Queue full now; this one must be dropped without blocking.
		done := make(chan struct{})
		go func() {
			s.TurnPersisted(turnWith("m3"), "mem-3")
			close(done)
		}()
		Eventually(done).Should(BeClosed())

		close(reflector.release)
		s.Close()
		Expect(reflector.callCount()).To(Equal(2))
	})

	It("passes retrieved context memories to the reflector", func() {
		driver := testutils.NewMockMemoryDriver()
		driver.SearchResults = []memory.Memory{{ID: "m1", Content: "earlier fact"}}
		searcher := memory.NewClient(driver, zap.NewNop())

		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 1, NumWorkers: 1, QueueSize: 4, UserID: "u"}, searcher, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("what about go?"), "mem-1")
		s.Close()

		Expect(reflector.related).To(HaveLen(1))
		Expect(reflector.related[0]).To(HaveLen(1))
		Expect(reflector.related[0][0].ID).To(Equal("m1"))
	})

	It("still reflects when context retrieval fails", func() {
		reflector := &stubReflector{}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 1, NumWorkers: 1, QueueSize: 4}, failingSearcher{}, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("hello"), "mem-1")
		s.Close()

		Expect(reflector.calls).To(HaveLen(1))
		Expect(reflector.related[0]).To(BeEmpty())
	})

	It("contains reflector failures", func() {
		reflector := &stubReflector{err: fmt.Errorf("analysis broke")}
		s, err := NewScheduler(Config{WindowSize: 10, Threshold: 1, NumWorkers: 1, QueueSize: 4}, nil, reflector)
		Expect(err).NotTo(HaveOccurred())

		s.TurnPersisted(turnWith("m1"), "mem-1")
		s.TurnPersisted(turnWith("m2"), "mem-2")
		s.Close()

		Expect(reflector.callCount()).To(Equal(2))
	})
})

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, memory.SearchOptions) ([]memory.Memory, error) {
	return nil, fmt.Errorf("search backend down")
}

var _ = Describe("contextQuery", func() {
	It("joins window contents", func() {
		query := contextQuery([]memory.Message{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
		})
		Expect(query).To(Equal("first second"))
	})

	It("truncates long messages", func() {
		long := strings.Repeat("x", 500)
		query := contextQuery([]memory.Message{{Role: "user", Content: long}})
		Expect(query).To(HaveLen(100))
	})

	It("skips empty messages", func() {
		query := contextQuery([]memory.Message{
			{Role: "user", Content: ""},
			{Role: "user", Content: "kept"},
		})
		Expect(query).To(Equal("kept"))
	})
})
