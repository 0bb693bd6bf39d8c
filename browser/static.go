package browser

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// challengeStatuses keep their body so the crawler can detect an interstitial.
var challengeStatuses = map[int]struct{}{
	http.StatusForbidden:          {},
	http.StatusServiceUnavailable: {},
}

// staticSession fetches pages over plain HTTP with colly. Nothing is rendered, so markers
// are checked once against the fetched document and never waited for.
type staticSession struct {
	opts Options
}

func launchStatic(opts Options) *staticSession {
	return &staticSession{opts: opts}
}

func (s *staticSession) NewPage(_ context.Context, userAgent string) (Page, error) {
	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true

	timeout := s.opts.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	if s.opts.Transport != nil {
		collector.WithTransport(s.opts.Transport)
	} else {
		collector.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	p := &staticPage{collector: collector}
	collector.OnResponse(func(r *colly.Response) {
		p.status = r.StatusCode
		p.body = r.Body
		p.url = r.Request.URL
	})
	return p, nil
}

func (s *staticSession) Close() error { return nil }

type staticPage struct {
	collector *colly.Collector

	url    *url.URL
	status int
	body   []byte
	doc    *goquery.Document
}

func (p *staticPage) Goto(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.status, p.body, p.doc = 0, nil, nil

	if err := p.collector.Visit(target); err != nil {
		return fmt.Errorf("goto %s: %w", target, err)
	}
	if p.status >= http.StatusBadRequest {
		if _, ok := challengeStatuses[p.status]; !ok {
			return &StatusError{URL: target, StatusCode: p.status}
		}
	}
	return nil
}

func (p *staticPage) document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc.Url = p.url
	p.doc = doc
	return doc, nil
}

func (p *staticPage) WaitFor(ctx context.Context, m Marker, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := p.document()
	if err != nil {
		return err
	}
	if m.Selector != "" && doc.Find(m.Selector).Length() > 0 {
		return nil
	}
	if m.Selector == "" && m.Text != "" && strings.Contains(doc.Text(), m.Text) {
		return nil
	}
	return timeoutError(m, timeout)
}

func (p *staticPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(p.body), nil
}
