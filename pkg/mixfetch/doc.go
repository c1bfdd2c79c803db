// Package mixfetch is a fetch-style HTTP client whose traffic travels
// through a mix network.
//
// Requests are executed by a sandbox that runs the mixnet client core.
// New starts the sandbox in-process; Dial connects to a sandbox host
// started with cmd/sandbox-host. Either way the client waits for the
// sandbox to report that it has loaded, after which Setup establishes the
// mixnet session and Fetch may be called any number of times, also
// concurrently:
//
//	c, err := mixfetch.New(ctx, mixfetch.Config{
//		PrimaryModule:   "mix_fetch.js",
//		SecondaryModule: "go_conn.js",
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.Setup(ctx, mixfetch.SetupOptions{}); err != nil {
//		return err
//	}
//	resp, err := c.Fetch(ctx, "https://nymtech.net/.wellknown/wallet/validators.json", mixfetch.RequestArgs{})
//
// Client also implements http.RoundTripper, and HTTPClient returns a
// standard *http.Client backed by it.
package mixfetch
