// Package proxy provides a transparent conversational-API proxy that captures
// request/response exchanges and persists reconstructed conversation turns to
// the memory store.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/capture"
	"github.com/coilworks/mnemo/pkg/llm"
	"github.com/coilworks/mnemo/pkg/sse"
	"github.com/coilworks/mnemo/proxy/header"
	"github.com/coilworks/mnemo/proxy/worker"
)

const defaultUpstreamURL = "https://api.anthropic.com"

// defaultCapturePaths are the request paths observed by the capture pipeline
// when none are configured.
var defaultCapturePaths = []string{"/v1/messages"}

// Proxy is a transparent HTTP proxy between a conversational-API client and
// its upstream. It forwards all traffic verbatim; for configured capture
// paths it additionally observes the exchange and enqueues the delivered
// response for async capture via its worker pool. Capture failures never
// disturb the proxied traffic.
type Proxy struct {
	config        Config
	pipeline      *capture.Pipeline
	workerPool    *worker.Pool
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy. The capture pipeline is injected so the same
// pipeline instance can serve other hosts (tests, one-shot capture).
func New(config Config, pipeline *capture.Pipeline, logger *zap.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		config.UpstreamURL = defaultUpstreamURL
	}
	if len(config.CapturePaths) == 0 {
		config.CapturePaths = defaultCapturePaths
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Pipeline:   pipeline,
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		config:        config,
		pipeline:      pipeline,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Upstream requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	// Register transparent proxy route - forwards any path to upstream
	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// handleProxy is a transparent proxy handler that forwards requests to
// upstream and feeds captured exchanges to the worker pool.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()

	path := c.Path()
	method := c.Method()
	body := c.Body()

	captured := method == http.MethodPost && len(body) > 0 && p.isCapturePath(path)

	flowID := ""
	if captured {
		flowID = uuid.NewString()
		p.pipeline.OnRequest(context.Background(), flowID, body)
	}

	if method == http.MethodPost && isStreamingRequest(body) {
		return p.handleStreamingProxy(c, path, body, flowID, startTime)
	}

	return p.handleNonStreamingProxy(c, path, method, body, flowID, startTime)
}

// handleNonStreamingProxy handles non-streaming requests.
func (p *Proxy) handleNonStreamingProxy(c *fiber.Ctx, path, method string, body []byte, flowID string, startTime time.Time) error {
	upstreamURL := p.config.UpstreamURL + path

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), method, upstreamURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		p.forgetFlow(flowID)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		zap.String("method", method),
		zap.String("url", upstreamURL),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		p.forgetFlow(flowID)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", zap.Error(err))
		p.forgetFlow(flowID)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "failed to read upstream response"})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	if flowID != "" {
		if httpResp.StatusCode == http.StatusOK {
			p.logger.Debug("received response from upstream",
				zap.String("flow_id", flowID),
				zap.Duration("duration", time.Since(startTime)),
			)
			p.enqueueCapture(flowID, respBody, httpResp.Header.Get("Content-Type"))
		} else {
			// Error responses carry no conversation turn.
			p.forgetFlow(flowID)
		}
	}

	// Return response to client immediately
	return c.Status(httpResp.StatusCode).Send(respBody)
}

// handleStreamingProxy handles streaming requests.
func (p *Proxy) handleStreamingProxy(c *fiber.Ctx, path string, body []byte, flowID string, startTime time.Time) error {
	upstreamURL := p.config.UpstreamURL + path

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the streaming callback runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		p.forgetFlow(flowID)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding streaming request to upstream",
		zap.String("url", upstreamURL),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		p.forgetFlow(flowID)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		p.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(respBody)),
		)
		p.forgetFlow(flowID)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter uses an internal PipeConns with a buffered channel
	// (capacity 4) and two bufio.Writers, which means Flush() in the callback
	// only pushes data into the pipe — NOT to the TCP socket. This causes all
	// chunks to buffer in memory before being sent to the client.
	//
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk. This gives direct backpressure and true per-chunk streaming.
	pr, pw := io.Pipe()
	go p.streamUpstreamToPipe(httpResp, pw, flowID, startTime)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamUpstreamToPipe relays the upstream body to the client pipe while
// accumulating a raw copy for capture.
func (p *Proxy) streamUpstreamToPipe(httpResp *http.Response, pw *io.PipeWriter, flowID string, startTime time.Time) {
	// Close the upstream response body once streaming is complete.
	defer httpResp.Body.Close()
	defer pw.Close()

	contentType := httpResp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		p.relayRawStream(httpResp.Body, pw, flowID, contentType)
		return
	}

	// Tee raw SSE bytes verbatim to the client while keeping a copy for the
	// capture pipeline. Event parsing here is only a relay loop; the pipeline
	// reconstructs from the accumulated raw stream.
	var raw bytes.Buffer
	dest := io.Writer(pw)
	if flowID != "" {
		dest = io.MultiWriter(pw, &raw)
	}
	tr := sse.NewTeeReader(httpResp.Body, dest)

	for {
		ev, err := tr.Next()
		if err != nil {
			p.logger.Error("error reading SSE stream", zap.Error(err))
			// A broken stream never produces a turn; drop the flow state.
			p.forgetFlow(flowID)
			return
		}
		if ev == nil {
			break
		}
	}

	if flowID != "" {
		p.logger.Debug("streaming complete",
			zap.String("flow_id", flowID),
			zap.Int("stream_bytes", raw.Len()),
			zap.Duration("duration", time.Since(startTime)),
		)
		p.enqueueCapture(flowID, raw.Bytes(), contentType)
	}
}

// relayRawStream copies a non-SSE streaming body through to the client. The
// accumulated copy is still handed to the pipeline, which parses it as a
// single JSON document.
func (p *Proxy) relayRawStream(src io.Reader, pw *io.PipeWriter, flowID, contentType string) {
	var raw bytes.Buffer
	dest := io.Writer(pw)
	if flowID != "" {
		dest = io.MultiWriter(pw, &raw)
	}

	if _, err := io.Copy(dest, src); err != nil {
		p.logger.Error("error relaying upstream stream", zap.Error(err))
		p.forgetFlow(flowID)
		return
	}

	if flowID != "" {
		p.enqueueCapture(flowID, raw.Bytes(), contentType)
	}
}

// enqueueCapture submits the delivered response body for async capture. When
// the queue is full the job drops and the flow state is released here so
// stashed requests do not leak.
func (p *Proxy) enqueueCapture(flowID string, body []byte, contentType string) {
	if len(body) == 0 {
		p.forgetFlow(flowID)
		return
	}

	queued := p.workerPool.Enqueue(worker.Job{
		FlowID:      flowID,
		Body:        body,
		ContentType: contentType,
	})
	if !queued {
		p.forgetFlow(flowID)
	}
}

func (p *Proxy) forgetFlow(flowID string) {
	if flowID != "" {
		p.pipeline.Forget(flowID)
	}
}

func (p *Proxy) isCapturePath(path string) bool {
	for _, capturePath := range p.config.CapturePaths {
		if path == capturePath {
			return true
		}
	}
	return false
}

// isStreamingRequest checks the raw JSON body for an explicit stream flag.
// The Messages API does not stream unless asked to.
func isStreamingRequest(body []byte) bool {
	var streamCheck struct {
		Stream *bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &streamCheck); err != nil || streamCheck.Stream == nil {
		return false
	}
	return *streamCheck.Stream
}
