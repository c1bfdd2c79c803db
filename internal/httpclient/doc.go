// Package httpclient provides the outbound HTTP client used to fetch module
// images and to resolve blob handles against a remote sandbox host.
//
// Built on go-resty/resty with a go-retryablehttp transport:
//   - Automatic retries with exponential backoff
//   - Connection pooling and keep-alive
//   - Context-based cancellation
//   - Optional rate limiting per client instance
//
// Example Usage:
//
//	client := httpclient.New(httpclient.DefaultConfig())
//	data, err := client.Get(ctx, "https://cdn.example.org/mix_fetch.js")
package httpclient
