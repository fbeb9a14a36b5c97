// Package fetch provides the HTTP fetch collaborator used by feed discovery.
//
// A Client sends browser-like request headers, enforces a per-call timeout
// through the request context, caps response bodies and decodes them to
// UTF-8. Non-2xx responses are reported as *StatusError so that callers can
// route them through their error breakers together with network failures.
//
// Requests can optionally be routed through a SOCKS5 proxy, including the
// proxy of an embedded Tor daemon started with EmbeddedTor. Site-specific
// cookies and headers are injected into every request by the transport.
//
// # Usage
//
//	client, err := fetch.NewClient(fetch.WithProxy("127.0.0.1:9050"))
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Fetch(ctx, "https://example.com/feed", 5*time.Second, nil)
package fetch
