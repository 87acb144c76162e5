package structuring

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Config", func() {
	DescribeTable("Validate",
		func(cfg Config, expected error) {
			err := cfg.Validate()
			if expected == nil {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(expected))
		},
		Entry("valid google config", Config{Provider: GoogleAI, APIKey: "k"}, nil),
		Entry("valid grok config", Config{Provider: XAI, APIKey: "k", ModelName: "grok-2"}, nil),
		Entry("missing key", Config{Provider: OpenAI}, ErrMissingAPIKey),
		Entry("blank key", Config{Provider: OpenAI, APIKey: "   "}, ErrMissingAPIKey),
		Entry("unknown provider", Config{Provider: "mistral", APIKey: "k"}, ErrUnknownProvider),
		Entry("empty provider", Config{APIKey: "k"}, ErrUnknownProvider),
	)

	DescribeTable("Model",
		func(cfg Config, expected string) {
			Expect(cfg.Model()).To(Equal(expected))
		},
		Entry("google default", Config{Provider: GoogleAI}, "gemini-1.5-pro"),
		Entry("openai default", Config{Provider: OpenAI}, "gpt-4o"),
		Entry("anthropic default", Config{Provider: Anthropic}, "claude-3-5-sonnet-20241022"),
		Entry("xai default", Config{Provider: XAI}, "grok-beta"),
		Entry("explicit model", Config{Provider: OpenAI, ModelName: "gpt-4o-mini"}, "gpt-4o-mini"),
	)

	DescribeTable("ParseProvider",
		func(id string, expected Provider) {
			p, err := ParseProvider(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(expected))
		},
		Entry("google", "google", GoogleAI),
		Entry("openai", "openai", OpenAI),
		Entry("claude", "claude", Anthropic),
		Entry("grok", " Grok ", XAI),
	)

	It("accepts every listed provider", func() {
		Expect(Providers).To(HaveLen(4))
		for _, p := range Providers {
			Expect(Config{Provider: p, APIKey: "k"}.Validate()).To(Succeed())
			parsed, err := ParseProvider(string(p))
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(p))
		}
	})

	It("rejects unknown provider ids", func() {
		_, err := ParseProvider("llama")
		Expect(err).To(MatchError(ErrUnknownProvider))
	})
})

var _ = Describe("Gateway", func() {
	var (
		server  *ghttp.Server
		gateway *Gateway
		cfg     Config
		out     string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		gateway = NewGateway(
			WithHTTPClient(server.HTTPTestServer.Client()),
			WithEndpoints(Endpoints{
				GoogleAI:  server.URL(),
				OpenAI:    server.URL(),
				Anthropic: server.URL(),
				XAI:       server.URL(),
			}),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		out, err = gateway.Structure(context.Background(), "1 cup flour", cfg)
	})

	Describe("GoogleAI", func() {
		BeforeEach(func() {
			cfg = Config{Provider: GoogleAI, APIKey: "g-key"}
			prompt := BuildPrompt("1 cup flour")
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1beta/models/gemini-1.5-pro:generateContent", "key=g-key"),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSONRepresenting(googleRequest{
					Contents: []googleContent{{Parts: []googlePart{{Text: &prompt}}}},
				}),
				ghttp.RespondWith(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"{\"title\":\"Bread\"}"}]}}]}`),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the first candidate's text", func() {
			Expect(out).To(Equal(`{"title":"Bread"}`))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Describe("OpenAI", func() {
		BeforeEach(func() {
			cfg = Config{Provider: OpenAI, APIKey: "o-key", ModelName: "gpt-4o-mini"}
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer o-key"),
				ghttp.VerifyJSONRepresenting(chatRequest{
					Model: "gpt-4o-mini",
					Messages: []chatMessage{
						{Role: "system", Content: "You are a recipe parsing expert. Output only valid JSON."},
						{Role: "user", Content: BuildPrompt("1 cup flour")},
					},
					Temperature: 0.3,
				}),
				ghttp.RespondWith(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"recipe json"}}]}`),
			))
		})

		It("should return the first choice's content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("recipe json"))
		})
	})

	Describe("XAI", func() {
		BeforeEach(func() {
			cfg = Config{Provider: XAI, APIKey: "x-key"}
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer x-key"),
				ghttp.VerifyJSON(`{
					"model": "grok-beta",
					"messages": [
						{"role": "system", "content": "You are a recipe parsing expert. Output only valid JSON."},
						{"role": "user", "content": `+quoteJSON(BuildPrompt("1 cup flour"))+`}
					],
					"temperature": 0.3
				}`),
				ghttp.RespondWith(http.StatusOK, `{"choices":[{"message":{"content":"grok says"}}]}`),
			))
		})

		It("should use the default model", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("grok says"))
		})
	})

	Describe("Anthropic", func() {
		BeforeEach(func() {
			cfg = Config{Provider: Anthropic, APIKey: "a-key"}
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/messages"),
				ghttp.VerifyHeaderKV("x-api-key", "a-key"),
				ghttp.VerifyHeaderKV("anthropic-version", "2023-06-01"),
				ghttp.VerifyJSONRepresenting(anthropicRequest{
					Model:       "claude-3-5-sonnet-20241022",
					MaxTokens:   2000,
					Messages:    []chatMessage{{Role: "user", Content: BuildPrompt("1 cup flour")}},
					Temperature: 0.3,
				}),
				ghttp.RespondWith(http.StatusOK, `{"content":[{"type":"text","text":"claude says"}]}`),
			))
		})

		It("should return the first content block's text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("claude says"))
		})
	})

	When("the provider answers with an error status", func() {
		BeforeEach(func() {
			cfg = Config{Provider: OpenAI, APIKey: "bad-key"}
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`))
		})

		It("returns an API error with the provider message", func() {
			var apiErr *APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Provider).To(Equal(OpenAI))
			Expect(apiErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(apiErr.Message).To(Equal("Incorrect API key provided"))
			Expect(err.Error()).To(ContainSubstring("Incorrect API key provided"))
		})
	})

	When("the error body is not JSON", func() {
		BeforeEach(func() {
			cfg = Config{Provider: Anthropic, APIKey: "a-key"}
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down"))
		})

		It("falls back to the status text", func() {
			var apiErr *APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Message).To(BeEmpty())
			Expect(err.Error()).To(ContainSubstring("Bad Gateway"))
		})
	})

	When("a successful answer has no payload", func() {
		BeforeEach(func() {
			cfg = Config{Provider: GoogleAI, APIKey: "g-key"}
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"candidates":[]}`))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrEmptyResponse))
		})
	})

	When("the provider cannot be reached", func() {
		var logs *bytes.Buffer

		BeforeEach(func() {
			cfg = Config{Provider: GoogleAI, APIKey: "g-secret-key"}
			logs = &bytes.Buffer{}
			gateway = NewGateway(
				WithEndpoints(Endpoints{GoogleAI: "http://127.0.0.1:1"}),
				WithLogger(slog.New(slog.NewTextHandler(logs, nil))),
			)
		})

		It("returns the network error", func() {
			var urlErr *url.Error
			Expect(errors.As(err, &urlErr)).To(BeTrue())
			Expect(urlErr.URL).To(Equal("http://127.0.0.1:1/v1beta/models/gemini-1.5-pro:generateContent"))
		})

		It("should keep the API key out of the error and the logs", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).NotTo(ContainSubstring("g-secret-key"))
			Expect(logs.String()).To(ContainSubstring("AI structuring failed"))
			Expect(logs.String()).NotTo(ContainSubstring("g-secret-key"))
		})
	})

	When("the API key is missing", func() {
		BeforeEach(func() {
			cfg = Config{Provider: OpenAI}
		})

		It("returns the error without calling the provider", func() {
			Expect(err).To(MatchError(ErrMissingAPIKey))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the provider is unknown", func() {
		BeforeEach(func() {
			cfg = Config{Provider: "mistral", APIKey: "k"}
		})

		It("returns the error without calling the provider", func() {
			Expect(err).To(MatchError(ErrUnknownProvider))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
