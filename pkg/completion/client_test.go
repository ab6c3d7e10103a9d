package completion_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/pkg/completion"
	"github.com/papercomputeco/lenschat/pkg/imaging"
	"github.com/papercomputeco/lenschat/pkg/llm"
)

// fakeTransport records requests and replays a canned response or error.
type fakeTransport struct {
	calls    int
	requests []*llm.ChatRequest
	resp     *llm.ChatResponse
	err      error
}

func (f *fakeTransport) Complete(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func testPNG() (*image.NRGBA, []byte) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := range 2 {
		for x := range 3 {
			img.Set(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(90 * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return img, buf.Bytes()
}

func decodeResponse(body string) *llm.ChatResponse {
	var resp llm.ChatResponse
	Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
	return &resp
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		logger *zap.Logger
		config completion.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = zap.NewNop()
		config = completion.Config{APIKey: "test-key", Model: "test-model"}
	})

	Describe("input validation", func() {
		It("returns the advisory result without calling the transport", func() {
			transport := &fakeTransport{}
			client := completion.NewClient(config, transport, logger)

			result := client.GetReply(ctx, "", nil)

			Expect(result.Kind).To(Equal(completion.KindEmptyInput))
			Expect(result.Display()).To(Equal("Please provide text or an image."))
			Expect(transport.calls).To(Equal(0))
		})

		It("treats whitespace-only text as empty", func() {
			transport := &fakeTransport{}
			client := completion.NewClient(config, transport, logger)

			Expect(client.GetReply(ctx, "  \n\t", nil).Kind).To(Equal(completion.KindEmptyInput))
			Expect(transport.calls).To(Equal(0))
		})

		It("rejects undecodable images without calling the transport", func() {
			transport := &fakeTransport{}
			client := completion.NewClient(config, transport, logger)

			result := client.GetReply(ctx, "what is this?", []byte("not an image"))

			Expect(result.Kind).To(Equal(completion.KindInvalidImage))
			Expect(result.Display()).To(HavePrefix("Error: "))
			Expect(transport.calls).To(Equal(0))
		})
	})

	Describe("request construction", func() {
		It("sends text only as a single text part", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"choices":[{"message":{"content":"ok"}}]}`)}
			client := completion.NewClient(config, transport, logger)

			client.GetReply(ctx, "hello", nil)

			Expect(transport.requests).To(HaveLen(1))
			req := transport.requests[0]
			Expect(req.Model).To(Equal("test-model"))
			Expect(req.Messages).To(HaveLen(1))
			Expect(req.Messages[0].Role).To(Equal("user"))
			Expect(req.Messages[0].Content).To(Equal([]llm.ContentPart{llm.TextPart("hello")}))
		})

		It("sends an image only as a single PNG data URI part", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"choices":[{"message":{"content":"ok"}}]}`)}
			client := completion.NewClient(config, transport, logger)

			_, data := testPNG()
			client.GetReply(ctx, "", data)

			parts := transport.requests[0].Messages[0].Content
			Expect(parts).To(HaveLen(1))
			Expect(parts[0].Type).To(Equal(llm.PartTypeImageURL))
			Expect(parts[0].ImageURL.URL).To(HavePrefix("data:image/png;base64,"))
		})

		It("embeds an image whose pixels survive the round trip", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"choices":[{"message":{"content":"ok"}}]}`)}
			client := completion.NewClient(config, transport, logger)

			original, data := testPNG()
			client.GetReply(ctx, "describe", data)

			parts := transport.requests[0].Messages[0].Content
			Expect(parts).To(HaveLen(2))
			Expect(parts[0]).To(Equal(llm.TextPart("describe")))

			mime, payload, err := imaging.ParseDataURI(parts[1].ImageURL.URL)
			Expect(err).NotTo(HaveOccurred())
			Expect(mime).To(Equal("image/png"))

			decoded, _, err := imaging.Decode(payload)
			Expect(err).NotTo(HaveOccurred())
			reencoded, err := imaging.EncodePNG(decoded)
			Expect(err).NotTo(HaveOccurred())
			again, _, err := imaging.Decode(reencoded)
			Expect(err).NotTo(HaveOccurred())

			for y := range 2 {
				for x := range 3 {
					want := color.NRGBAModel.Convert(original.At(x, y))
					Expect(color.NRGBAModel.Convert(decoded.At(x, y))).To(Equal(want))
					Expect(color.NRGBAModel.Convert(again.At(x, y))).To(Equal(want))
				}
			}
		})
	})

	Describe("response handling", func() {
		It("returns the first choice content exactly", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"choices":[{"message":{"content":"X"}}]}`)}
			client := completion.NewClient(config, transport, logger)

			result := client.GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindOK))
			Expect(result.Text).To(Equal("X"))
			Expect(result.Display()).To(Equal("X"))
		})

		It("reports a provider error payload", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"error":"bad key"}`)}
			client := completion.NewClient(config, transport, logger)

			result := client.GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Display()).To(ContainSubstring("Failed to get description from the API."))
			Expect(result.Display()).To(ContainSubstring("bad key"))
		})

		It("reports missing choices without an error payload", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"id":"gen-1"}`)}
			client := completion.NewClient(config, transport, logger)

			result := client.GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Display()).To(Equal("Failed to get description from the API."))
		})

		It("treats an empty choices list as malformed", func() {
			transport := &fakeTransport{resp: decodeResponse(`{"choices":[]}`)}
			client := completion.NewClient(config, transport, logger)

			Expect(client.GetReply(ctx, "hi", nil).Kind).To(Equal(completion.KindMalformedResponse))
		})

		It("turns transport errors into an Error: string instead of propagating", func() {
			transport := &fakeTransport{err: errors.New("connection reset by peer")}
			client := completion.NewClient(config, transport, logger)

			var result completion.Result
			Expect(func() { result = client.GetReply(ctx, "hi", nil) }).NotTo(Panic())

			Expect(result.Kind).To(Equal(completion.KindTransportFailure))
			Expect(result.Display()).To(Equal("Error: connection reset by peer"))
			Expect(errors.Is(result.Err(), completion.ErrTransportFailure)).To(BeTrue())
		})
	})

	Describe("RESTTransport", func() {
		var (
			server   *httptest.Server
			handler  http.HandlerFunc
			captured *http.Request
			body     []byte
		)

		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"id":"gen-1","model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"a red square"}}]}`)
			}
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = r
				body, _ = io.ReadAll(r.Body)
				handler(w, r)
			}))
			config.BaseURL = server.URL
		})

		AfterEach(func() {
			server.Close()
		})

		newClient := func() *completion.Client {
			return completion.NewClient(config, completion.NewRESTTransport(config, nil, logger), logger)
		}

		It("posts the documented request shape", func() {
			result := newClient().GetReply(ctx, "what is this?", nil)
			Expect(result.Kind).To(Equal(completion.KindOK))
			Expect(result.Text).To(Equal("a red square"))

			Expect(captured.Method).To(Equal(http.MethodPost))
			Expect(captured.URL.Path).To(Equal("/chat/completions"))
			Expect(captured.Header.Get("Authorization")).To(Equal("Bearer test-key"))
			Expect(captured.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(captured.Header.Get("HTTP-Referer")).To(Equal(completion.DefaultReferer))
			Expect(captured.Header.Get("X-Title")).To(Equal(completion.DefaultTitle))

			Expect(body).To(MatchJSON(`{
				"model": "test-model",
				"messages": [{"role": "user", "content": [{"type": "text", "text": "what is this?"}]}]
			}`))
		})

		It("decodes error bodies on non-2xx statuses", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
			}

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Display()).To(ContainSubstring("No auth credentials found"))
		})

		It("classifies non-JSON bodies as malformed", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				io.WriteString(w, "<html>bad gateway</html>")
			}

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Detail).To(ContainSubstring("status 502"))
		})

		It("classifies connection failures as transport failures", func() {
			server.Close()

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindTransportFailure))
			Expect(result.Display()).To(HavePrefix("Error: "))
		})

		It("honours context cancellation", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			result := newClient().GetReply(cancelled, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindTransportFailure))
			Expect(result.Detail).To(ContainSubstring("context canceled"))
		})
	})

	Describe("SDKTransport", func() {
		var (
			server  *httptest.Server
			handler http.HandlerFunc
			body    []byte
			auth    string
			title   string
		)

		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"id":"gen-2","object":"chat.completion","created":1,"model":"test-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello from sdk"}}]}`)
			}
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ = io.ReadAll(r.Body)
				auth = r.Header.Get("Authorization")
				title = r.Header.Get("X-Title")
				handler(w, r)
			}))
			config.BaseURL = server.URL
		})

		AfterEach(func() {
			server.Close()
		})

		newClient := func() *completion.Client {
			return completion.NewClient(config, completion.NewSDKTransport(config, logger), logger)
		}

		It("returns the reply and sends the multimodal parts", func() {
			_, data := testPNG()
			result := newClient().GetReply(ctx, "describe", data)

			Expect(result.Kind).To(Equal(completion.KindOK))
			Expect(result.Text).To(Equal("hello from sdk"))
			Expect(auth).To(Equal("Bearer test-key"))
			Expect(title).To(Equal(completion.DefaultTitle))

			var req llm.ChatRequest
			Expect(json.Unmarshal(body, &req)).To(Succeed())
			Expect(req.Model).To(Equal("test-model"))
			Expect(req.Messages).To(HaveLen(1))
			Expect(req.Messages[0].Content).To(HaveLen(2))
			Expect(req.Messages[0].Content[0].Text).To(Equal("describe"))
			Expect(req.Messages[0].Content[1].ImageURL.URL).To(HavePrefix("data:image/png;base64,"))
		})

		It("maps API errors to a malformed result carrying the status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
			}

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Display()).To(HavePrefix("Failed to get description from the API. Error: "))
			Expect(result.Detail).To(ContainSubstring("401"))
		})

		It("keeps the provider error from a 200 body without choices", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"error":"bad key"}`)
			}

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Display()).To(Equal("Failed to get description from the API. Error: bad key"))
		})

		It("reports a 200 body without choices or error as plain malformed", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"id":"gen-3"}`)
			}

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindMalformedResponse))
			Expect(result.Display()).To(Equal("Failed to get description from the API."))
		})

		It("classifies connection failures as transport failures", func() {
			server.Close()

			result := newClient().GetReply(ctx, "hi", nil)

			Expect(result.Kind).To(Equal(completion.KindTransportFailure))
		})
	})

	Describe("NewTransport", func() {
		It("builds the named transports", func() {
			rest, err := completion.NewTransport("rest", config, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(rest).To(BeAssignableToTypeOf(&completion.RESTTransport{}))

			sdk, err := completion.NewTransport("SDK", config, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(sdk).To(BeAssignableToTypeOf(&completion.SDKTransport{}))
		})

		It("rejects unknown transports", func() {
			_, err := completion.NewTransport("grpc", config, logger)
			Expect(err).To(HaveOccurred())
			Expect(strings.Contains(err.Error(), "grpc")).To(BeTrue())
		})
	})
})
