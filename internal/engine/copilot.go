package engine

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const copilotName = "copilot"

// CopilotEngine collects answers from a provider with no public query API by
// fetching and parsing its HTML answer page. The acquisition method is an
// implementation detail: callers see the same Engine contract and failure
// kinds as the API-backed adapters.
type CopilotEngine struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewCopilot creates a scrape-backed Copilot adapter. baseURL points at the
// answer page endpoint; the variant text is passed as the q parameter.
func NewCopilot(baseURL string, requestsPerMinute int) *CopilotEngine {
	return &CopilotEngine{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 45 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: perMinuteLimiter(requestsPerMinute),
	}
}

func (e *CopilotEngine) Name() string { return copilotName }

func (e *CopilotEngine) Capabilities() Capabilities {
	return Capabilities{SearchGrounding: true, NativeCitations: true}
}

func (e *CopilotEngine) Submit(ctx context.Context, variantText string) (*RawResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, Classify(copilotName, err)
	}

	endpoint := e.baseURL + "?q=" + url.QueryEscape(variantText)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewFailure(KindUnavailable, copilotName, err)
	}
	req.Header.Set("User-Agent", "visibility-cli/1.0")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, Classify(copilotName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(copilotName, resp.StatusCode, errors.New(resp.Status))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, NewFailure(KindParseFailure, copilotName, err)
	}

	text := strings.TrimSpace(doc.Find(".answer-body").Text())
	if text == "" {
		// Some deployments render the answer in a generic main block.
		text = strings.TrimSpace(doc.Find("main").Text())
	}
	if text == "" {
		return nil, NewFailure(KindParseFailure, copilotName, errors.New("no answer body in page"))
	}

	var cites []string
	doc.Find(".answer-sources a[href], .attribution a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && strings.HasPrefix(href, "http") {
			cites = append(cites, href)
		}
	})

	return &RawResponse{Text: text, Citations: cites}, nil
}

func (e *CopilotEngine) Health(ctx context.Context) HealthState {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.baseURL, nil)
	if err != nil {
		return HealthUnhealthy
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return stateFromErr(Classify(copilotName, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return HealthHealthy
	case resp.StatusCode == http.StatusTooManyRequests:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}
