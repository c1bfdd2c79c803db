package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/config"
	"github.com/nymtech/nym-sub006/internal/infrastructure/logging"
	"github.com/nymtech/nym-sub006/internal/shared/types"
	"github.com/nymtech/nym-sub006/pkg/mixfetch"
)

var (
	method    string
	headers   []string
	data      string
	remote    string
	gateway   string
	primary   string
	secondary string
	include   bool
	jsonOut   bool
	verbose   bool
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "mixfetch URL [flags]",
	Short: "Fetch a URL through the mixnet",
	Long: `Fetch a URL through the mixnet and print the response body.

Module sources and session defaults come from MIXFETCH_* environment
variables; flags override them.

Examples:
  # Fetch through an in-process sandbox
  mixfetch https://example.com/

  # Post JSON and show response headers
  mixfetch -X POST -H 'Content-Type: application/json' -d '{"a":1}' -i https://example.com/api

  # Use a running sandbox host and print the response as JSON
  mixfetch --remote ws://127.0.0.1:8686/rpc --json https://example.com/`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runFetch,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&method, "request", "X", "GET", "HTTP method")
	flags.StringArrayVarP(&headers, "header", "H", nil, "Request header as 'Name: value' (repeatable)")
	flags.StringVarP(&data, "data", "d", "", "Request body; @file reads it from a file")
	flags.StringVar(&remote, "remote", "", "Websocket URL of a sandbox host")
	flags.StringVar(&gateway, "gateway", "", "Preferred entry gateway")
	flags.StringVar(&primary, "primary", "", "Primary module source (path or URL)")
	flags.StringVar(&secondary, "secondary", "", "Secondary module source (path or URL)")
	flags.BoolVarP(&include, "include", "i", false, "Print the status line and headers")
	flags.BoolVarP(&jsonOut, "json", "j", false, "Print the whole response as JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log sandbox activity to stderr")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if remote != "" {
		cfg.Transport.Remote = remote
	}
	if primary != "" {
		cfg.Sandbox.PrimaryModule = primary
	}
	if secondary != "" {
		cfg.Sandbox.SecondaryModule = secondary
	}
	if gateway != "" {
		cfg.Session.PreferredGateway = gateway
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewNop()
	if verbose {
		logger = logging.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	reqArgs, err := requestArgs()
	if err != nil {
		return err
	}
	setup, err := mixfetch.SetupFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientCfg := mixfetch.FromConfig(cfg)
	clientCfg.Logger = logger.Logger

	var client *mixfetch.Client
	if cfg.Transport.Remote != "" {
		client, err = mixfetch.Dial(ctx, cfg.Transport.Remote, clientCfg)
	} else {
		client, err = mixfetch.New(ctx, clientCfg)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("close client", zap.Error(err))
		}
	}()

	if err := client.Setup(ctx, setup); err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Debug("disconnect", zap.Error(err))
		}
	}()

	resp, err := client.Fetch(ctx, args[0], reqArgs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, resp)
	}
	return printPlain(out, resp)
}

func requestArgs() (mixfetch.RequestArgs, error) {
	reqArgs := mixfetch.RequestArgs{Method: strings.ToUpper(method)}

	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return reqArgs, fmt.Errorf("header %q is not in 'Name: value' form", h)
		}
		reqArgs.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	if strings.HasPrefix(data, "@") {
		body, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return reqArgs, err
		}
		reqArgs.Body = body
	} else if data != "" {
		reqArgs.Body = []byte(data)
	}
	return reqArgs, nil
}

func printPlain(w io.Writer, resp *mixfetch.Response) error {
	if include {
		fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status)
		for _, h := range resp.Headers {
			fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value)
		}
		fmt.Fprintln(w)
	}
	_, err := w.Write(resp.Bytes())
	return err
}

type jsonResponse struct {
	URL        string               `json:"url"`
	Status     int                  `json:"status"`
	StatusText string               `json:"statusText"`
	OK         bool                 `json:"ok"`
	Redirected bool                 `json:"redirected"`
	Type       string               `json:"type,omitempty"`
	Headers    [][2]string          `json:"headers"`
	BodyKind   types.BodyKind       `json:"bodyKind"`
	Body       string               `json:"body,omitempty"`
	BodyBase64 string               `json:"bodyBase64,omitempty"`
	Form       []mixfetch.FormField `json:"form,omitempty"`
}

func printJSON(w io.Writer, resp *mixfetch.Response) error {
	out := jsonResponse{
		URL:        resp.URL,
		Status:     resp.StatusCode,
		StatusText: resp.StatusText,
		OK:         resp.OK,
		Redirected: resp.Redirected,
		Type:       resp.Type,
		Headers:    make([][2]string, 0, len(resp.Headers)),
		BodyKind:   resp.Kind,
		Form:       resp.Form,
	}
	for _, h := range resp.Headers {
		out.Headers = append(out.Headers, [2]string{h.Name, h.Value})
	}

	switch resp.Kind {
	case types.BodyJSON, types.BodyText, types.BodyForm:
		out.Body = resp.Text()
	case types.BodyEmpty:
	default:
		out.BodyBase64 = base64.StdEncoding.EncodeToString(resp.Bytes())
	}

	encoded, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", encoded)
	return err
}
