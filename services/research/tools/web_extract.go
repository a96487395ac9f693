// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

var webExtractTracer = otel.Tracer("aleutian.research.tools.web_extract")

const (
	maxPageBytes     = 2 << 20
	maxExtractChars  = 30000
	maxOutboundLinks = 20
	userAgent        = "AleutianResearch/1.0"
)

// WebExtract fetches one page and reduces it to readable text plus the
// outbound links found in it. The input string is the page URL.
type WebExtract struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewWebExtract creates the tool. The limiter may be shared with WebSearch;
// nil disables rate limiting.
func NewWebExtract(limiter *rate.Limiter) *WebExtract {
	return &WebExtract{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

func (w *WebExtract) Name() string { return NameWebExtract }

func (w *WebExtract) Execute(ctx context.Context, input string) (*Result, error) {
	ctx, span := webExtractTracer.Start(ctx, "WebExtract.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("url", input))

	pageURL, err := url.Parse(input)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return FailureResult(NameWebExtract, fmt.Errorf("not a fetchable URL: %q", input)), nil
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return FailureResult(NameWebExtract, err), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, nil)
	if err != nil {
		return FailureResult(NameWebExtract, err), nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page fetch failed")
		slog.Warn("Page fetch failed", "url", input, "error", err)
		return FailureResult(NameWebExtract, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
		return FailureResult(NameWebExtract,
			fmt.Errorf("page returned status %d", resp.StatusCode)), nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return FailureResult(NameWebExtract, fmt.Errorf("HTML parse failed: %w", err)), nil
	}

	title, text, links := flattenPage(doc, pageURL)
	if strings.TrimSpace(text) == "" {
		return &Result{Content: fmt.Sprintf("page %s contained no extractable text", input)}, nil
	}
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars]
	}
	span.SetAttributes(
		attribute.Int("text_chars", len(text)),
		attribute.Int("links", len(links)),
	)

	return &Result{
		Content:  text,
		Sources:  []string{input},
		Links:    links,
		Metadata: map[string]string{"title": title},
	}, nil
}

// flattenPage walks the DOM collecting visible text, the page title, and
// absolute http(s) outbound links. Script, style, nav, and footer subtrees
// are skipped entirely.
func flattenPage(doc *html.Node, base *url.URL) (title, text string, links []string) {
	var b strings.Builder
	seen := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "header", "aside":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				if link := resolveLink(n, base); link != "" && !seen[link] && len(links) < maxOutboundLinks {
					seen[link] = true
					links = append(links, link)
				}
			case "p", "div", "li", "br", "h1", "h2", "h3", "h4", "tr":
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, strings.TrimSpace(b.String()), links
}

func resolveLink(n *html.Node, base *url.URL) string {
	for _, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(attr.Val))
		if err != nil {
			return ""
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return ""
		}
		abs.Fragment = ""
		return abs.String()
	}
	return ""
}
