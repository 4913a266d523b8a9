package translate

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	commonlog "portal_server/server/common/log"
)

const (
	ProviderNone        = "none"
	ProviderPrimary     = "mymemory"
	ProviderSecondary   = "libretranslate"
	ProviderCache       = "cache"
	ProviderPhrasebook  = "phrasebook"
	ProviderPassthrough = "passthrough"
)

const cacheTTL = 7 * 24 * time.Hour

type Result struct {
	TranslatedText string `json:"translated_text"`
	Success        bool   `json:"success"`
	Provider       string `json:"provider"`
	Error          string `json:"error,omitempty"`
}

// Translated reports whether the text was actually rendered in the target
// language rather than echoed back.
func (r Result) Translated() bool {
	switch r.Provider {
	case ProviderPrimary, ProviderSecondary, ProviderCache, ProviderPhrasebook:
		return true
	}
	return false
}

// Cache is satisfied by cache.KV.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Config struct {
	PrimaryURL   string
	SecondaryURL string
	Timeout      time.Duration
}

type Service struct {
	primaryURL   string
	secondaryURL string
	timeout      time.Duration
	httpClient   *http.Client
	cache        Cache
}

func NewService(cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		primaryURL:   strings.TrimRight(strings.TrimSpace(cfg.PrimaryURL), "/"),
		secondaryURL: strings.TrimRight(strings.TrimSpace(cfg.SecondaryURL), "/"),
		timeout:      timeout,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// Translate never fails. When every remote provider is unavailable it falls
// back to the phrasebook, then to a language-tagged copy of the input.
func (s *Service) Translate(ctx context.Context, text, source, target string) Result {
	source = normalizeLang(source)
	target = normalizeLang(target)
	if strings.TrimSpace(text) == "" || source == target || source == "" || target == "" {
		return Result{TranslatedText: text, Success: true, Provider: ProviderNone}
	}

	key := cacheKey(text, source, target)
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok && cached != "" {
			return Result{TranslatedText: cached, Success: true, Provider: ProviderCache}
		}
	}

	var failures []string
	remotes := []struct {
		name string
		call func(context.Context, string, string, string) (string, error)
	}{
		{ProviderPrimary, s.callPrimary},
		{ProviderSecondary, s.callSecondary},
	}
	for _, remote := range remotes {
		translated, err := remote.call(ctx, text, source, target)
		if err != nil {
			commonlog.Warnf("event=translate action=remote status=failed provider=%s langpair=%s|%s error=%v", remote.name, source, target, err)
			failures = append(failures, remote.name+": "+err.Error())
			continue
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, translated, cacheTTL); err != nil {
				commonlog.Debugf("event=translate action=cache_set status=failed error=%v", err)
			}
		}
		return Result{TranslatedText: translated, Success: true, Provider: remote.name}
	}

	errText := strings.Join(failures, "; ")
	if phrase, ok := Lookup(text, source, target); ok {
		return Result{TranslatedText: phrase, Success: true, Provider: ProviderPhrasebook, Error: errText}
	}
	return Result{
		TranslatedText: fmt.Sprintf("[%s→%s] %s", strings.ToUpper(source), strings.ToUpper(target), text),
		Success:        true,
		Provider:       ProviderPassthrough,
		Error:          errText,
	}
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus json.RawMessage `json:"responseStatus"`
}

func (s *Service) callPrimary(ctx context.Context, text, source, target string) (string, error) {
	if s.primaryURL == "" {
		return "", fmt.Errorf("not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", source+"|"+target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.primaryURL+"/get?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var out myMemoryResponse
	if err := s.do(req, &out); err != nil {
		return "", err
	}
	if status := strings.Trim(string(out.ResponseStatus), `" `); status != "" {
		if code, err := strconv.Atoi(status); err != nil || code != http.StatusOK {
			return "", fmt.Errorf("response status %s", status)
		}
	}
	translated := strings.TrimSpace(out.ResponseData.TranslatedText)
	if translated == "" {
		return "", fmt.Errorf("empty translation")
	}
	return translated, nil
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (s *Service) callSecondary(ctx context.Context, text, source, target string) (string, error) {
	if s.secondaryURL == "" {
		return "", fmt.Errorf("not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(libreRequest{Q: text, Source: source, Target: target, Format: "text"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.secondaryURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var out libreResponse
	if err := s.do(req, &out); err != nil {
		return "", err
	}
	translated := strings.TrimSpace(out.TranslatedText)
	if translated == "" {
		return "", fmt.Errorf("empty translation")
	}
	return translated, nil
}

func (s *Service) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}

func cacheKey(text, source, target string) string {
	sum := sha1.Sum([]byte(text))
	return "translate:" + source + ":" + target + ":" + hex.EncodeToString(sum[:])
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
