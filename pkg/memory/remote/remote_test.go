package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
	"github.com/coilworks/mnemo/pkg/memory/remote"
)

// recordedRequest captures what the driver sent for assertions.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

func newDriver(baseURL string) *remote.Driver {
	driver, err := remote.NewDriver(remote.Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		AgentID: "agent-1",
	}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	return driver
}

var _ = Describe("Driver", func() {
	var (
		server   *httptest.Server
		recorded *recordedRequest
		status   int
		respBody string
		ctx      context.Context
	)

	BeforeEach(func() {
		recorded = &recordedRequest{}
		status = http.StatusOK
		respBody = `{}`
		ctx = context.Background()

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorded.Method = r.Method
			recorded.Path = r.URL.Path
			recorded.Query = r.URL.RawQuery
			recorded.Auth = r.Header.Get("Authorization")
			recorded.Body = nil
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&recorded.Body)
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(respBody))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an API key", func() {
		_, err := remote.NewDriver(remote.Config{}, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	Describe("Add", func() {
		It("posts the messages with token auth and returns the assigned ID", func() {
			respBody = `{"id": "mem-123"}`

			driver := newDriver(server.URL)
			result, err := driver.Add(ctx, []memory.Message{
				{Role: "user", Content: "hello"},
				{Role: "assistant", Content: "hi"},
			}, memory.AddOptions{UserID: "u1", RunID: "run-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ID).To(Equal("mem-123"))

			Expect(recorded.Method).To(Equal(http.MethodPost))
			Expect(recorded.Path).To(Equal("/v1/memories/"))
			Expect(recorded.Auth).To(Equal("Token test-key"))
			Expect(recorded.Body).To(HaveKeyWithValue("user_id", "u1"))
			Expect(recorded.Body).To(HaveKeyWithValue("run_id", "run-1"))
			Expect(recorded.Body["messages"]).To(HaveLen(2))
		})

		It("takes the first ID from a results-list response", func() {
			respBody = `{"results": [{"id": "mem-9", "memory": "hello"}]}`

			driver := newDriver(server.URL)
			result, err := driver.Add(ctx, []memory.Message{{Role: "user", Content: "hello"}}, memory.AddOptions{UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ID).To(Equal("mem-9"))
		})
	})

	Describe("Search", func() {
		It("sends the identity filters and decodes results", func() {
			respBody = `{"results": [{"id": "m1", "memory": "stored fact", "score": 0.9}]}`

			driver := newDriver(server.URL)
			results, err := driver.Search(ctx, "fact", memory.SearchOptions{UserID: "u1", Limit: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m1"))
			Expect(results[0].Content).To(Equal("stored fact"))
			Expect(results[0].Score).To(BeNumerically("~", 0.9))

			Expect(recorded.Path).To(Equal("/v2/memories/search/"))
			Expect(recorded.Body).To(HaveKeyWithValue("query", "fact"))
			Expect(recorded.Body).To(HaveKeyWithValue("top_k", float64(5)))
			filters, ok := recorded.Body["filters"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(filters).To(HaveKeyWithValue("user_id", "u1"))
			Expect(filters).To(HaveKeyWithValue("agent_id", "agent-1"))
		})
	})

	Describe("GetAll", func() {
		It("lists memories scoped to the user", func() {
			respBody = `{"results": [{"id": "m1", "memory": "a"}, {"id": "m2", "memory": "b"}]}`

			driver := newDriver(server.URL)
			results, err := driver.GetAll(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))

			Expect(recorded.Method).To(Equal(http.MethodGet))
			Expect(recorded.Path).To(Equal("/v1/memories/"))
			Expect(recorded.Query).To(Equal("user_id=u1"))
		})

		It("accepts a bare-array response body", func() {
			respBody = `[{"id": "m1", "memory": "a"}]`

			driver := newDriver(server.URL)
			results, err := driver.GetAll(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m1"))
		})
	})

	Describe("Delete", func() {
		It("issues a DELETE for the memory path", func() {
			driver := newDriver(server.URL)
			Expect(driver.Delete(ctx, "mem-1")).To(Succeed())

			Expect(recorded.Method).To(Equal(http.MethodDelete))
			Expect(recorded.Path).To(Equal("/v1/memories/mem-1/"))
		})
	})

	Describe("DeleteAll", func() {
		It("issues a DELETE scoped to the user", func() {
			driver := newDriver(server.URL)
			Expect(driver.DeleteAll(ctx, "u1")).To(Succeed())

			Expect(recorded.Method).To(Equal(http.MethodDelete))
			Expect(recorded.Query).To(Equal("user_id=u1"))
		})
	})

	Context("error phrasing", func() {
		It("maps 4xx client errors to bad-request text", func() {
			status = http.StatusBadRequest
			respBody = `{"error": "missing user_id"}`

			driver := newDriver(server.URL)
			_, err := driver.Add(ctx, []memory.Message{{Role: "user", Content: "x"}}, memory.AddOptions{})
			Expect(err).To(HaveOccurred())
			Expect(strings.ToLower(err.Error())).To(ContainSubstring("bad request"))
		})

		It("maps gateway timeouts to timeout text", func() {
			status = http.StatusGatewayTimeout

			driver := newDriver(server.URL)
			_, err := driver.GetAll(ctx, "u1")
			Expect(err).To(HaveOccurred())
			Expect(strings.ToLower(err.Error())).To(ContainSubstring("timeout"))
		})
	})
})
