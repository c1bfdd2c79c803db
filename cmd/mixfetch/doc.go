// Package main is the mixfetch command line client.
//
// It fetches one URL through the mixnet, either in an in-process sandbox
// built from the configured module images or through a remote sandbox
// host, and prints the response.
//
// Usage:
//
//	mixfetch https://example.com/
//	mixfetch -X POST -H 'Content-Type: application/json' -d '{"a":1}' https://example.com/api
//	mixfetch --remote ws://127.0.0.1:8686/rpc --json https://example.com/
package main
