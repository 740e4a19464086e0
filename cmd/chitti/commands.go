package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/chitti/internal/app"
	"github.com/jordanhubbard/chitti/internal/service"
)

// shell holds the in-process host the commands operate on.
type shell struct {
	cfg app.Config
	srv *app.Server

	// notify delivers shutdown signals to serve; tests replace it.
	notify func(chan<- os.Signal)
}

func newRootCmd(sh *shell) *cobra.Command {
	root := &cobra.Command{
		Use:          "chitti",
		Short:        "Host for pluggable AI providers, agents and tools",
		SilenceUsage: true,
	}

	root.AddCommand(
		sh.promptCmd(),
		sh.listCmd("list-providers", "List registered providers", sh.srv.Service().ListProviders),
		sh.listCmd("list-agents", "List registered agents", sh.srv.Service().ListAgents),
		sh.listCmd("list-tools", "List registered tools", sh.srv.Service().ListTools),
		sh.providerInfoCmd(),
		sh.agentInfoCmd(),
		sh.setDefaultProviderCmd(),
		sh.setDefaultModelCmd(),
		sh.getDefaultsCmd(),
		sh.serveCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "chitti %s\n", version)
			},
		},
	)
	for _, c := range sh.srv.AgentCommands() {
		root.AddCommand(c)
	}
	return root
}

func (sh *shell) promptCmd() *cobra.Command {
	var (
		model, provider string
		noStream        bool
	)
	cmd := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Send a prompt to a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.PromptRequest{Prompt: args[0], Model: model, Provider: provider}
			out := cmd.OutOrStdout()
			if noStream {
				resp, err := sh.srv.Service().Process(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, resp.Response)
				return nil
			}

			_, st, err := sh.srv.Service().Stream(cmd.Context(), req)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			for {
				frag, err := st.Recv()
				if errors.Is(err, io.EOF) {
					fmt.Fprintln(out)
					return nil
				}
				if err != nil {
					fmt.Fprintln(out)
					return err
				}
				fmt.Fprint(out, frag)
			}
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model to use (default: provider default)")
	cmd.Flags().StringVar(&provider, "provider", "", "provider to use (default: default provider)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full response")
	return cmd
}

func (sh *shell) listCmd(use, short string, list func() []string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			names := list()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(none)")
				return
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (sh *shell) providerInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provider-info <provider>",
		Short: "Show provider metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := sh.srv.Service().ProviderInfo(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func (sh *shell) agentInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent-info <agent>",
		Short: "Show agent metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := sh.srv.Service().AgentInfo(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func (sh *shell) setDefaultProviderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default-provider <provider>",
		Short: "Set the default provider for this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sh.srv.Service().SetDefaultProvider(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default provider set to %s\n", args[0])
			return nil
		},
	}
}

func (sh *shell) setDefaultModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default-model <provider> <model>",
		Short: "Set the default model of a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sh.srv.Service().SetDefaultModel(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default model for %s set to %s\n", args[0], args[1])
			return nil
		},
	}
}

func (sh *shell) getDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-default-settings",
		Short: "Show the default provider and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := sh.srv.Service().DefaultSettings()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider: %s\nmodel: %s\n", s.Provider, s.Model)
			return nil
		},
	}
}

func (sh *shell) serveCmd() *cobra.Command {
	var host, port string
	defHost, defPort, _ := net.SplitHostPort(sh.cfg.ListenAddr)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.ValidatePort(port); err != nil {
				return err
			}
			return sh.serve(cmd.Context(), net.JoinHostPort(host, port))
		},
	}
	cmd.Flags().StringVar(&host, "host", defHost, "interface to listen on")
	cmd.Flags().StringVar(&port, "port", defPort, "port to listen on (0-65535)")
	return cmd
}

func (sh *shell) serve(ctx context.Context, addr string) error {
	logger := sh.srv.Logger()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           sh.srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		WriteTimeout:      300 * time.Second, // long streaming responses
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("chitti listening", slog.String("addr", ln.Addr().String()), slog.String("version", version))
		errc <- httpServer.Serve(ln)
	}()

	stop := make(chan os.Signal, 1)
	notify := sh.notify
	if notify == nil {
		notify = func(c chan<- os.Signal) { signal.Notify(c, syscall.SIGINT, syscall.SIGTERM) }
	}
	notify(stop)
	defer signal.Stop(stop)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-stop:
	case <-ctx.Done():
	}
	logger.Info("shutting down (draining in-flight requests)")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
