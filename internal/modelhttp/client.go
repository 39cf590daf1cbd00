// Package modelhttp talks to the model sidecar: a small HTTP service that
// hosts the tokenizer, masked LM, tagger, sentence embedder and NLI model.
// Every endpoint takes and returns JSON.
package modelhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

// Client implements model.MaskedLM, model.Tagger, model.Embedder and
// model.Entailer against one sidecar.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	maskID    int
	vocabSize int
}

// Dial connects to the sidecar at baseURL and reads its model info.
func Dial(ctx context.Context, baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: model service base URL required", internalerr.ErrInvalidConfig)
	}
	c := &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if err := c.loadInfo(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Info is the reply of GET /info.
type Info struct {
	MaskID    int    `json:"mask_id"`
	VocabSize int    `json:"vocab_size"`
	Model     string `json:"model"`
}

func (c *Client) loadInfo(ctx context.Context) error {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return err
	}
	if info.VocabSize <= 0 {
		return fmt.Errorf("%w: sidecar reported vocab size %d", internalerr.ErrModelService, info.VocabSize)
	}
	c.maskID, c.vocabSize = info.MaskID, info.VocabSize
	return nil
}

// MaskID implements model.MaskedLM.
func (c *Client) MaskID() int { return c.maskID }

// VocabSize is the logit width reported by the sidecar.
func (c *Client) VocabSize() int { return c.vocabSize }

type textRequest struct {
	Text string `json:"text"`
}

type idsPayload struct {
	IDs []int `json:"ids"`
}

// tokenizeResponse carries offsets in Unicode code points, the unit of a
// fast tokenizer's offset_mapping.
type tokenizeResponse struct {
	IDs     []int    `json:"ids"`
	Offsets [][2]int `json:"offsets"`
}

// Tokenize implements model.MaskedLM. The sidecar's code point offsets are
// converted to byte offsets into text.
func (c *Client) Tokenize(ctx context.Context, text string) (model.Encoding, error) {
	var resp tokenizeResponse
	if err := c.do(ctx, http.MethodPost, "/tokenize", textRequest{Text: text}, &resp); err != nil {
		return model.Encoding{}, err
	}
	if len(resp.Offsets) != len(resp.IDs) {
		return model.Encoding{}, fmt.Errorf("%w: tokenize: %d ids but %d offsets", internalerr.ErrModelService, len(resp.IDs), len(resp.Offsets))
	}
	offsets, err := byteSpans(text, resp.Offsets)
	if err != nil {
		return model.Encoding{}, err
	}
	return model.Encoding{IDs: resp.IDs, Offsets: offsets}, nil
}

// byteSpans maps code point ranges over text to byte ranges.
func byteSpans(text string, offsets [][2]int) ([]model.Span, error) {
	// bytePos[i] is the byte index of rune i; the last entry is len(text).
	bytePos := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		bytePos = append(bytePos, i)
	}
	bytePos = append(bytePos, len(text))

	spans := make([]model.Span, len(offsets))
	for i, o := range offsets {
		if o[0] < 0 || o[1] < o[0] || o[1] >= len(bytePos) {
			return nil, fmt.Errorf("%w: tokenize: offset [%d,%d) outside text of %d characters", internalerr.ErrModelService, o[0], o[1], len(bytePos)-1)
		}
		spans[i] = model.Span{Start: bytePos[o[0]], End: bytePos[o[1]]}
	}
	return spans, nil
}

// EncodeWord implements model.MaskedLM.
func (c *Client) EncodeWord(ctx context.Context, word string) ([]int, error) {
	var resp idsPayload
	if err := c.do(ctx, http.MethodPost, "/encode", struct {
		Word string `json:"word"`
	}{word}, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Decode implements model.MaskedLM.
func (c *Client) Decode(ctx context.Context, ids []int) (string, error) {
	var resp textRequest
	if err := c.do(ctx, http.MethodPost, "/decode", idsPayload{IDs: ids}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Infer implements model.MaskedLM.
func (c *Client) Infer(ctx context.Context, ids []int) ([][]float64, error) {
	var resp struct {
		Logits [][]float64 `json:"logits"`
	}
	if err := c.do(ctx, http.MethodPost, "/infer", idsPayload{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Logits) != len(ids) {
		return nil, fmt.Errorf("%w: infer: %d positions for %d ids", internalerr.ErrModelService, len(resp.Logits), len(ids))
	}
	return resp.Logits, nil
}

type wordInfo struct {
	Text      string            `json:"text"`
	POS       string            `json:"pos"`
	Tag       string            `json:"tag"`
	Morph     map[string]string `json:"morph"`
	IsProper  bool              `json:"is_proper"`
	IsNumeric bool              `json:"is_numeric"`
}

// Analyze implements model.Tagger.
func (c *Client) Analyze(ctx context.Context, text string) ([]model.WordInfo, error) {
	var resp struct {
		Words []wordInfo `json:"words"`
	}
	if err := c.do(ctx, http.MethodPost, "/analyze", textRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.WordInfo, len(resp.Words))
	for i, w := range resp.Words {
		out[i] = model.WordInfo(w)
	}
	return out, nil
}

// ExtractWords implements model.Tagger.
func (c *Client) ExtractWords(ctx context.Context, text string) ([]string, error) {
	var resp struct {
		Words []string `json:"words"`
	}
	if err := c.do(ctx, http.MethodPost, "/words", textRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Words, nil
}

// SplitSentences implements model.Tagger.
func (c *Client) SplitSentences(ctx context.Context, text string) ([]string, error) {
	var resp struct {
		Sentences []string `json:"sentences"`
	}
	if err := c.do(ctx, http.MethodPost, "/sentences", textRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Sentences, nil
}

// Embed implements model.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := c.do(ctx, http.MethodPost, "/embed", textRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

type nliRequest struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

type nliResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify implements model.Entailer.
func (c *Client) Classify(ctx context.Context, premise, hypothesis string) (model.NLILabel, float64, error) {
	var resp nliResponse
	if err := c.do(ctx, http.MethodPost, "/nli", nliRequest{Premise: premise, Hypothesis: hypothesis}, &resp); err != nil {
		return "", 0, err
	}
	label := model.NLILabel(strings.ToLower(resp.Label))
	if !label.Valid() {
		return "", 0, fmt.Errorf("%w: nli: unknown label %q", internalerr.ErrModelService, resp.Label)
	}
	return label, resp.Confidence, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// do sends one request. Transport failures, non-2xx statuses and
// undecodable bodies are all reported as ErrModelService.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", internalerr.ErrModelService, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			msg = e.Error
		}
		return fmt.Errorf("%w: %s: %s", internalerr.ErrModelService, path, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", internalerr.ErrModelService, path, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
