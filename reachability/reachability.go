// Package reachability checks whether a website answers over HTTP(S) and
// whether a TCP endpoint accepts connections.
package reachability

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/netcheckd/mainloop"
	"github.com/the-lightning-land/netcheckd/network"
	"golang.org/x/net/http2"
)

const (
	// maxSchemeUpgrades limits how often a 301 on plain http is retried over https
	maxSchemeUpgrades = 1

	maxRedirects = 10

	// at most this much of a response body is read to allow connection reuse
	maxDrainBytes = 64 << 10
)

type Config struct {
	// Network is asked for an active connection before any request is made
	Network  network.Querier
	MainLoop mainloop.Poster
	// Client is optional, a client following same-scheme redirects is created otherwise
	Client *http.Client
	// Timeout bounds a single request, zero means no timeout
	Timeout time.Duration
	Logger  Logger
}

type Prober struct {
	log      Logger
	network  network.Querier
	mainLoop mainloop.Poster
	client   *http.Client
}

func New(config *Config) *Prober {
	prober := &Prober{
		network:  config.Network,
		mainLoop: config.MainLoop,
	}

	if config.Logger != nil {
		prober.log = config.Logger
	} else {
		prober.log = noopLogger{}
	}

	if prober.mainLoop == nil {
		prober.mainLoop = mainloop.Inline{}
	}

	var client http.Client

	if config.Client != nil {
		client = *config.Client
	} else {
		client = http.Client{
			Transport: prober.newTransport(),
		}
	}

	if client.CheckRedirect == nil {
		client.CheckRedirect = followSameScheme
	}

	if config.Timeout > 0 {
		client.Timeout = config.Timeout
	}

	prober.client = &client

	return prober
}

func (p *Prober) newTransport() *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	err := http2.ConfigureTransport(transport)
	if err != nil {
		p.log.Warnf("Could not enable HTTP/2, falling back to HTTP/1.1: %v", err)
	}

	return transport
}

// followSameScheme follows redirects unless they switch between http and
// https. The redirect response itself is then returned to the caller.
func followSameScheme(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.Errorf("stopped after %d redirects", maxRedirects)
	}

	if req.URL.Scheme != via[0].URL.Scheme {
		return http.ErrUseLastResponse
	}

	return nil
}

// CheckReachable reports through callback whether target answers with 200 OK.
//
// Without an active network the callback is invoked with false before
// CheckReachable returns. Otherwise the request runs on its own goroutine and
// the result is posted to the main loop.
func (p *Prober) CheckReachable(ctx context.Context, target string, callback func(bool)) {
	if !p.connected() {
		p.log.Debugf("Not checking %v, no active network", target)
		callback(false)
		return
	}

	go func() {
		reachable, err := p.probe(ctx, target)
		if err != nil {
			p.log.Warnf("Could not reach %v: %v", target, err)
		}

		if !p.mainLoop.Post(func() { callback(reachable) }) {
			p.log.Debugf("Dropping result for %v, main loop is shut down", target)
		}
	}()
}

// Reachable is the blocking form of CheckReachable. Errors describe why a
// request failed; the target is unreachable in that case.
func (p *Prober) Reachable(ctx context.Context, target string) (bool, error) {
	if !p.connected() {
		return false, nil
	}

	return p.probe(ctx, target)
}

func (p *Prober) probe(ctx context.Context, target string) (bool, error) {
	for upgrades := 0; ; upgrades++ {
		reachable, upgraded, err := p.attempt(ctx, target)
		if err != nil || upgraded == "" {
			return reachable, err
		}

		if upgrades >= maxSchemeUpgrades {
			return false, nil
		}

		// the whole check is repeated for the upgraded url
		if !p.connected() {
			return false, nil
		}

		p.log.Debugf("%v moved permanently, checking %v", target, upgraded)
		target = upgraded
	}
}

// attempt issues a single request. upgraded is set when a plain http target
// answered 301 Moved Permanently.
func (p *Prober) attempt(ctx context.Context, target string) (reachable bool, upgraded string, err error) {
	if err := ValidateTarget(target); err != nil {
		return false, "", err
	}

	u, err := url.Parse(target)
	if err != nil {
		return false, "", errors.Errorf("could not parse url: %v", err)
	}

	scheme := strings.ToLower(u.Scheme)

	status, err := p.status(ctx, target)
	if err != nil {
		return false, "", err
	}

	p.log.Debugf("%v answered with %v", target, status)

	if scheme == "http" && status == http.StatusMovedPermanently {
		u.Scheme = "https"
		return false, u.String(), nil
	}

	return status == http.StatusOK, "", nil
}

func (p *Prober) status(ctx context.Context, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, errors.Errorf("could not create request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, errors.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return resp.StatusCode, nil
}

func (p *Prober) connected() bool {
	if p.network == nil {
		return true
	}

	active, err := p.network.ActiveNetwork()
	if err != nil {
		p.log.Warnf("Could not determine active network: %v", err)
		return false
	}

	return active != nil
}

// CheckAddressReachable reports whether a TCP connection to host:port can be
// established within timeout. The connection is closed right away.
func CheckAddressReachable(host string, port int, timeout time.Duration) bool {
	return checkAddressReachable(noopLogger{}, host, port, timeout)
}

// CheckAddressReachable is like the package level function but logs why a
// connection could not be established.
func (p *Prober) CheckAddressReachable(host string, port int, timeout time.Duration) bool {
	return checkAddressReachable(p.log, host, port, timeout)
}

func checkAddressReachable(log Logger, host string, port int, timeout time.Duration) bool {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		log.Debugf("Could not connect to %v: %v", address, err)
		return false
	}

	_ = conn.Close()

	return true
}
