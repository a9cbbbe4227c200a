package reflection

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
	testutils "github.com/coilworks/mnemo/pkg/utils/test"
)

func userMsg(content string) memory.Message {
	return memory.Message{Role: "user", Content: content}
}

var _ = Describe("Analyze", func() {
	It("returns nothing for an empty window", func() {
		Expect(Analyze(nil, nil)).To(BeEmpty())
	})

	It("returns nothing when only the assistant spoke", func() {
		window := []memory.Message{
			{Role: "assistant", Content: "how to implement? debug? fix? optimize?"},
		}
		Expect(Analyze(window, nil)).To(BeEmpty())
	})

	It("flags frequent questions", func() {
		window := []memory.Message{
			userMsg("what? why? when?"),
			userMsg("really?"),
		}
		insights := Analyze(window, nil)
		Expect(insights).To(HaveLen(1))
		Expect(insights[0].Type).To(Equal("frequent_questions"))
		Expect(insights[0].Content).To(ContainSubstring("4 questions"))
	})

	It("does not flag three or fewer questions", func() {
		window := []memory.Message{userMsg("what? why? when?")}
		Expect(Analyze(window, nil)).To(BeEmpty())
	})

	It("identifies the dominant topic", func() {
		window := []memory.Message{
			userMsg("my database keeps locking"),
			userMsg("database migrations are slow"),
		}
		insights := Analyze(window, nil)
		Expect(insights).To(HaveLen(1))
		Expect(insights[0].Type).To(Equal("focus_area"))
		Expect(insights[0].Content).To(ContainSubstring("database"))
		Expect(insights[0].Content).To(ContainSubstring("2 mentions"))
	})

	It("requires at least two mentions for a focus area", func() {
		window := []memory.Message{userMsg("my database keeps locking")}
		Expect(Analyze(window, nil)).To(BeEmpty())
	})

	It("breaks topic ties alphabetically", func() {
		window := []memory.Message{
			userMsg("testing the docker build"),
			userMsg("docker compose and testing again"),
		}
		insights := Analyze(window, nil)
		Expect(insights).To(HaveLen(1))
		Expect(insights[0].Content).To(ContainSubstring("centers on docker"))
	})

	It("detects a problem-solving pattern", func() {
		window := []memory.Message{
			userMsg("how to parse this"),
			userMsg("please fix the handler"),
			userMsg("now optimize it"),
		}
		insights := Analyze(window, nil)
		Expect(insights).To(HaveLen(1))
		Expect(insights[0].Type).To(Equal("problem_solving_pattern"))
		Expect(insights[0].Content).To(ContainSubstring("3 of 3"))
	})

	It("mentions related memories in the problem-solving insight", func() {
		window := []memory.Message{
			userMsg("how to parse this"),
			userMsg("please fix the handler"),
			userMsg("now optimize it"),
		}
		related := []memory.Memory{{ID: "m1"}, {ID: "m2"}}
		insights := Analyze(window, related)
		Expect(insights).To(HaveLen(1))
		Expect(insights[0].Content).To(ContainSubstring("2 related memories"))
	})

	It("derives several insight types from one window", func() {
		window := []memory.Message{
			userMsg("how to fix this go error? why? what? huh?"),
			userMsg("implement the go handler"),
			userMsg("debug the go tests"),
		}
		insights := Analyze(window, nil)

		types := make([]string, 0, len(insights))
		for _, insight := range insights {
			types = append(types, insight.Type)
		}
		Expect(types).To(ConsistOf("frequent_questions", "focus_area", "problem_solving_pattern"))
	})
})

var _ = Describe("Analyzer", func() {
	var (
		driver   *testutils.MockMemoryDriver
		analyzer *Analyzer
		ctx      context.Context
	)

	BeforeEach(func() {
		driver = testutils.NewMockMemoryDriver()
		client := memory.NewClient(driver, zap.NewNop())
		analyzer = NewAnalyzer(client, "user-1", "agent-1", zap.NewNop())
		ctx = context.Background()
	})

	It("stores one memory per derived insight", func() {
		window := []memory.Message{
			userMsg("what? why? when? how?"),
			userMsg("how to fix the database"),
			userMsg("debug the database query"),
			userMsg("optimize the database index"),
		}

		Expect(analyzer.Reflect(ctx, window, nil)).To(Succeed())
		Expect(driver.Stored).To(HaveLen(3))
		Expect(driver.Stored[0][0].Role).To(Equal("assistant"))
	})

	It("stores nothing for an uneventful window", func() {
		window := []memory.Message{userMsg("hello there")}

		Expect(analyzer.Reflect(ctx, window, nil)).To(Succeed())
		Expect(driver.Stored).To(BeEmpty())
		Expect(driver.AddCalls).To(BeZero())
	})

	It("propagates store failures", func() {
		driver.FailAddTimes = 100
		driver.AddErr = fmt.Errorf("store down")
		client := memory.NewClient(driver, zap.NewNop(),
			memory.WithMaxAttempts(1),
		)
		analyzer = NewAnalyzer(client, "user-1", "agent-1", zap.NewNop())

		window := []memory.Message{
			userMsg("what? why? when? how?"),
		}
		Expect(analyzer.Reflect(ctx, window, nil)).NotTo(Succeed())
	})
})
