package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"askbox/internal/adapter/display"
	"askbox/internal/adapter/llm"
	"askbox/internal/domain"
	"askbox/internal/infra/config"
	"askbox/internal/infra/logger"
	"askbox/internal/infra/tracer"
	"askbox/internal/usecase/stream"
)

type askOptions struct {
	lang     string
	plain    bool
	session  string
	fresh    bool
	noFooter bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the answer",
		Long: `Ask a question and stream the answer. With no arguments the question is
read from standard input. Ctrl-C stops the stream and keeps what was shown.`,
		Example: `  askbox ask "What is a goroutine?"
  askbox ask --lang fr "Explain channels"
  echo "Summarize RFC 9110" | askbox ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.lang, "lang", "", "display language (BCP 47, e.g. fr, zh-CN); overrides translation.target_language")
	f.BoolVar(&opts.plain, "plain", false, "print raw text instead of rendered markdown")
	f.StringVar(&opts.session, "session", "", "history session key; overrides session.key")
	f.BoolVar(&opts.fresh, "fresh", false, "do not send earlier turns as context")
	f.BoolVar(&opts.noFooter, "no-footer", false, "omit the status line")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, args []string) error {
	question, err := readQuestion(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{configPath: root.configPath, sessionKey: opts.session})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.lang != "" {
		a.cfg.Translation.TargetLanguage = opts.lang
		if err := config.Validate(a.cfg); err != nil {
			return err
		}
	}

	if a.metrics != nil && a.cfg.Metrics.Addr != "" {
		if _, _, err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			a.log.Warn("metrics server not started", "addr", a.cfg.Metrics.Addr, "error", err)
		}
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	disp, closeDisplay, err := newDisplay(out, errOut, opts.plain)
	if err != nil {
		return err
	}
	defer closeDisplay()

	httpClient := llm.NewHTTPClient(a.cfg.Provider)
	client := llm.NewStreamClient(a.cfg.Provider, logger.Component(a.log, "llm"), llm.WithHTTPClient(httpClient))
	translator := llm.NewTranslator(a.cfg.Provider, a.cfg.Translation, logger.Component(a.log, "translate"), llm.WithHTTPClient(httpClient))

	pipeline := stream.NewPipeline(stream.PipelineDeps{
		Display:    disp,
		Translator: translator,
		Languages:  a.cfg.Translation.Languages(),
		Recorder:   a.recorder,
		Bus:        a.bus,
		Logger:     logger.Component(a.log, "stream"),
		Config:     pipelineConfig(a.cfg.Stream),
	})

	ctx, span := tracer.StartSpan(ctx, "askbox.ask")
	defer span.End()

	var turns []domain.ConversationTurn
	if !opts.fresh {
		turns = a.recorder.History()
	}

	body, err := client.Open(ctx, question, turns)
	if err != nil {
		if ctx.Err() != nil {
			closeDisplay()
			printFooter(errOut, opts, display.Summary{Cancelled: true})
			return nil
		}
		tracer.RecordError(span, err)
		return err
	}
	defer body.Close()

	res, err := pipeline.Run(ctx, question, body)
	closeDisplay()
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	stream.AnnotateSpan(span, res)
	tracer.SetOK(span)

	printFooter(errOut, opts, display.Summary{
		Duration:   res.Duration,
		Renders:    res.Stats.Rendered,
		Translated: res.Translated,
		Target:     res.Target,
		Cancelled:  res.Cancelled,
	})
	return nil
}

// readQuestion joins args, or reads stdin when there are none.
func readQuestion(in io.Reader, args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" && in != nil {
		data, err := io.ReadAll(io.LimitReader(in, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read question: %w", err)
		}
		q = strings.TrimSpace(string(data))
	}
	if q == "" {
		return "", errors.New("no question given")
	}
	return q, nil
}

// newDisplay picks the markdown display for terminals and the incremental
// writer otherwise. The returned close func is safe to call twice.
func newDisplay(out, status io.Writer, plain bool) (domain.Display, func(), error) {
	if plain || !isTerminal(out) {
		return display.NewTerminal(out), func() {}, nil
	}
	md, err := display.NewMarkdown(out, status, display.MarkdownConfig{})
	if err != nil {
		return nil, nil, err
	}
	return md, md.Close, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func pipelineConfig(sc config.StreamConfig) stream.Config {
	return stream.Config{
		Renderer: stream.RendererConfig{
			MinInterval:   sc.MinRenderInterval,
			DeferredDelay: sc.DeferredRenderDelay,
		},
		Replay: stream.ReplayConfig{
			Step: sc.ReplayStep,
			Tick: sc.ReplayTick,
		},
		ReadBufferSize: sc.ReadBufferSize,
	}
}

func printFooter(w io.Writer, opts *askOptions, s display.Summary) {
	if opts.noFooter {
		return
	}
	fmt.Fprintln(w, display.Footer(s, display.DetectSymbols()))
}
