package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/cli"
	"github.com/tdh8316/handlescout/internal/config"
	"github.com/tdh8316/handlescout/internal/data"
	"github.com/tdh8316/handlescout/internal/httpx"
	"github.com/tdh8316/handlescout/internal/notify"
	"github.com/tdh8316/handlescout/internal/output"
	"github.com/tdh8316/handlescout/internal/platform"
	"github.com/tdh8316/handlescout/internal/platform/instagram"
	"github.com/tdh8316/handlescout/internal/proxypool"
	"github.com/tdh8316/handlescout/internal/store"
)

// Stdin feeds "--list -" and the prompt shown when no handles are given.
var Stdin io.Reader = os.Stdin

func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "handlescout - check handle availability across platforms.")

	opts, handles, err := cli.Parse(args, stdout, stderr)
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	cfg, err := config.Load(opts.ConfigFile, opts.EnvFile)
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 2
	}
	opts.Apply(&cfg)
	color.NoColor = cfg.NoColor

	log := newLogger(stderr, cfg.Debug)

	if opts.TestWebhook {
		return runWebhookTest(ctx, stdout, stderr, cfg, log)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 2
	}
	entry, _ := platform.Lookup(cfg.Platform)
	profile := cfg.Profile(entry.Profile)

	rules := instagram.DefaultRules()
	if cfg.RulesFile != "" {
		if rules, err = instagram.LoadRules(cfg.RulesFile); err != nil {
			fmt.Fprintf(stderr, "rules error: %v\n", err)
			return 2
		}
	}

	pool := httpx.NewPool(httpx.ClientConfig{Timeout: profile.ProbeTimeout})
	direct, err := pool.For(nil)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize HTTP client: %v\n", err)
		return 1
	}

	proxies, err := loadProxies(ctx, direct, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "proxy error: %v\n", err)
		return 2
	}

	adapter := entry.New(pool, cfg.Settings(rules))

	if opts.Test {
		var proxy *url.URL
		if len(proxies) > 0 {
			proxy = proxies[0]
		}
		return runTest(ctx, stdout, cfg.NoColor, adapter, entry, proxy)
	}

	if opts.ListSource != "" {
		lines, err := data.Load(ctx, direct, Stdin, cfg.UserAgent, opts.ListSource)
		if err != nil {
			fmt.Fprintf(stderr, "list error: %v\n", err)
			return 2
		}
		handles = append(handles, lines...)
	}
	// Back-compat behavior: if no handles provided, prompt.
	if len(handles) == 0 {
		handles = promptHandles(stdout, Stdin)
	}
	candidates, rejected := data.Candidates(handles, entry.Normalize)
	for _, r := range rejected {
		warn(stdout, cfg.NoColor, fmt.Sprintf("Skipping invalid %s handle %q", entry.Display, r))
	}

	var journal *store.Journal
	if cfg.Database != "" {
		if journal, err = store.Open(cfg.Database, log); err != nil {
			fmt.Fprintf(stderr, "journal error: %v\n", err)
			return 1
		}
		defer journal.Close()

		if cfg.SkipChecked {
			candidates = skipChecked(ctx, journal, entry.Name, candidates, stdout, cfg.NoColor)
		}
	}

	if len(candidates) == 0 {
		fmt.Fprintln(stderr, "no handles to check")
		return 2
	}

	hooks := map[string]check.Hook{}
	if cfg.WebhookURL != "" {
		wh := notify.New(cfg.WebhookURL, entry.Display, entry.ProfileURL, notify.WithLogger(log))
		hooks["webhook"] = wh.Hook()
	}

	engine := check.NewEngine(adapter, check.Config{
		Profile:          profile,
		Proxies:          proxies,
		Debug:            cfg.Debug,
		RetryRateLimited: cfg.RetryRateLimited,
		ErrorThreshold:   cfg.ErrorThreshold,
		Cooldown:         cfg.Cooldown(),
		Hooks:            hooks,
	}, check.WithLogger(log))

	// Buffer for the available-handles file.
	var buf strings.Builder
	printer := output.NewPrinter(stdout, cfg.NoColor, cfg.Debug, &buf)

	sink := check.Sink(printer.Event)
	if journal != nil {
		sink = journal.Sink(sink)
	}

	if cfg.NoColor {
		fmt.Fprintf(stdout, "\nChecking %d handle(s) on %s:\n", len(candidates), entry.Display)
	} else {
		fmt.Fprintf(stdout, "\nChecking %d handle(s) on %s:\n", len(candidates), color.HiGreenString(entry.Display))
	}

	sum, err := engine.Run(ctx, candidates, sink)
	if err != nil {
		fmt.Fprintf(stderr, "run error: %v\n", err)
		return 1
	}
	printer.Summary(sum)

	if !cfg.NoOutput && buf.Len() > 0 {
		outPath, err := appendResults(cfg.ResultsDir, entry.Name, buf.String())
		if err != nil {
			fmt.Fprintf(stderr, "failed to write %q: %v\n", outPath, err)
			return 1
		}
		info(stdout, cfg.NoColor, "Available handles saved to "+outPath)
	}

	return 0
}

func newLogger(stderr io.Writer, debug bool) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.WarnLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l)
}

func loadProxies(ctx context.Context, client httpx.Doer, cfg config.Config) ([]*url.URL, error) {
	lines := append([]string(nil), cfg.Proxies...)
	if cfg.ProxyFile != "" {
		more, err := data.Load(ctx, client, Stdin, cfg.UserAgent, cfg.ProxyFile)
		if err != nil {
			return nil, err
		}
		lines = append(lines, more...)
	}
	return proxypool.Parse(lines)
}

func skipChecked(ctx context.Context, j *store.Journal, platformName string, candidates []string, stdout io.Writer, noColor bool) []string {
	seen, err := j.Checked(ctx, platformName)
	if err != nil {
		warn(stdout, noColor, "Could not read journal: "+err.Error())
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if !seen[c] {
			out = append(out, c)
		}
	}
	if n := len(candidates) - len(out); n > 0 {
		info(stdout, noColor, fmt.Sprintf("Skipping %d handle(s) already in the journal", n))
	}
	return out
}

func appendResults(dir, platformName, content string) (string, error) {
	outDir := filepath.Join(dir, platformName)
	outPath := filepath.Join(outDir, "available.txt")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return outPath, err
	}
	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return outPath, err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return outPath, err
	}
	return outPath, f.Close()
}

func promptHandles(stdout io.Writer, stdin io.Reader) []string {
	fmt.Fprint(stdout, "Enter handles to check separated by a space: ")
	r := bufio.NewReader(stdin)
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	return strings.Fields(line)
}

func runWebhookTest(ctx context.Context, stdout, stderr io.Writer, cfg config.Config, log *logrus.Entry) int {
	if cfg.WebhookURL == "" {
		fmt.Fprintln(stderr, "no webhook URL given (--webhook or WEBHOOK_URL)")
		return 2
	}
	display := "Handle"
	if e, ok := platform.Lookup(cfg.Platform); ok {
		display = e.Display
	}
	wh := notify.New(cfg.WebhookURL, display, nil, notify.WithLogger(log), notify.WithRetries(0))
	if err := wh.Test(ctx); err != nil {
		fmt.Fprintf(stderr, "webhook test failed: %v\n", err)
		return 1
	}
	info(stdout, cfg.NoColor, "Webhook test successful! Check your Discord channel.")
	return 0
}

func runTest(ctx context.Context, stdout io.Writer, noColor bool, a check.Adapter, entry platform.Entry, proxy *url.URL) int {
	info(stdout, noColor, fmt.Sprintf("Checking %s adapter against known handles...", entry.Name))

	if len(entry.KnownPairs) == 0 {
		warn(stdout, noColor, "No known handles for "+entry.Name+"; nothing to test.")
		return 0
	}

	failCount, err := check.SelfTest(ctx, a, entry.KnownPairs, proxy, func(f check.SelfTestFailure) {
		if f.Err != nil {
			if noColor {
				fmt.Fprintf(stdout, "[-] %s: Failed with error [%s]\n", entry.Name, f.Err)
			} else {
				fmt.Fprintf(stdout, "[-] %s: %s [%s]\n", entry.Name, color.YellowString("Failed with error"), f.Err)
			}
			return
		}

		msg := fmt.Sprintf("(%s: expected taken, result is %s | %s: expected available, result is %s)",
			f.Pair.Taken, describe(f.Taken), f.Pair.Free, describe(f.Free))
		if noColor {
			fmt.Fprintf(stdout, "[-] %s: Not working %s\n", entry.Name, msg)
		} else {
			fmt.Fprintf(stdout, "[-] %s: %s %s\n", entry.Name, color.RedString("Not working"), msg)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stdout, "self-test error: %v\n", err)
		return 1
	}

	if noColor {
		fmt.Fprintln(stdout, "[Done]")
	} else {
		fmt.Fprintf(stdout, "[%s]\n", color.GreenString("Done"))
	}
	if failCount > 0 {
		fmt.Fprintf(stdout, "\n%d of %d known pair(s) did not classify as expected.\n", failCount, len(entry.KnownPairs))
		return 1
	}
	return 0
}

func describe(o check.Outcome) string {
	if o.Detail != "" {
		return o.Verdict.String() + " (" + o.Detail + ")"
	}
	return o.Verdict.String()
}

func info(stdout io.Writer, noColor bool, msg string) {
	if noColor {
		fmt.Fprintf(stdout, "[i] %s\n", msg)
		return
	}
	fmt.Fprintf(stdout, "[%s] %s\n", color.HiBlueString("i"), msg)
}

func warn(stdout io.Writer, noColor bool, msg string) {
	if noColor {
		fmt.Fprintf(stdout, "[!] %s\n", msg)
		return
	}
	fmt.Fprintf(stdout, "[%s] %s\n", color.HiRedString("!"), color.HiYellowString(msg))
}
