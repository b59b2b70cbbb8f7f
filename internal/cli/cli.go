package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/tdh8316/handlescout/internal/config"
)

var ErrHelp = errors.New("help requested")

type Options struct {
	NoColor          bool
	NoOutput         bool
	Debug            bool
	Test             bool
	TestWebhook      bool
	RetryRateLimited bool
	SkipChecked      bool

	Platform    string
	ListSource  string
	ProxySource string
	Proxies     []string
	ConfigFile  string
	EnvFile     string
	RulesFile   string
	Concurrency int
	Delay       float64
	Timeout     int
	WebhookURL  string
	Database    string
	ResultsDir  string
	UserAgent   string

	// set holds the canonical names of flags given on the command line.
	set map[string]bool
}

const usageText = `
usage:
  handlescout [flags] HANDLE [HANDLES...]
  handlescout [flags] --list FILE|URL
  handlescout --test [--platform NAME]

positional arguments:
  HANDLES               one or more handles to check

flags:
  -h, --help            show this help message and exit
  --no-color            disable colored stdout output
  --no-output           disable the available-handles results file
  -v, --debug           show request traces and heuristic signals
  --test                probe known taken/free handles and report mismatches
  --test-webhook        send a test message to the webhook and exit
  --retry-rate-limited  re-check a rate-limited handle once after the pause
  --skip-checked        skip handles the journal already has a verdict for

options:
  -p, --platform NAME   discord, discord-legacy, instagram, roblox (default: discord)
  -l, --list SRC        read handles from a file, URL, or - for stdin
  --proxies SRC         read proxies from a file or URL, one per line
  --proxy P1,P2,...     proxies given inline (http, https, socks5)
  --config PATH         YAML/JSON/TOML config file
  --env PATH            dotenv file (default: .env)
  --rules PATH          instagram heuristic rules (YAML)
  --concurrency N       max concurrent requests (default: platform)
  --delay SECONDS       pause between dispatches (default: platform)
  --timeout SECONDS     per-check timeout (default: platform)
  --webhook URL         Discord webhook notified of available handles
  --journal PATH        SQLite journal of runs and verdicts
  --results DIR         output directory (default: results)
  --user-agent UA       override the browser user agent

credentials come from the environment or the config file:
  DISCORD_TOKEN         discord-legacy
  INSTAGRAM_SESSIONID   instagram
`

// aliases maps short flag names to the canonical one.
var aliases = map[string]string{
	"h": "help",
	"v": "debug",
	"p": "platform",
	"l": "list",
}

func Parse(args []string, stdout, stderr io.Writer) (Options, []string, error) {
	var opts Options
	var (
		help     bool
		proxyCSV string
	)

	fs := flag.NewFlagSet("handlescout", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Usage = func() {
		_, _ = fmt.Fprint(stdout, usageText)
	}

	// Help
	fs.BoolVar(&help, "h", false, "show help")
	fs.BoolVar(&help, "help", false, "show help")

	// Behavior flags
	fs.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	fs.BoolVar(&opts.NoOutput, "no-output", false, "disable file output")
	fs.BoolVar(&opts.Debug, "v", false, "debug output")
	fs.BoolVar(&opts.Debug, "debug", false, "debug output")
	fs.BoolVar(&opts.Test, "test", false, "self-test the platform")
	fs.BoolVar(&opts.TestWebhook, "test-webhook", false, "test the webhook")
	fs.BoolVar(&opts.RetryRateLimited, "retry-rate-limited", false, "retry rate-limited handles once")
	fs.BoolVar(&opts.SkipChecked, "skip-checked", false, "skip journaled handles")

	// Options
	fs.StringVar(&opts.Platform, "p", "", "platform")
	fs.StringVar(&opts.Platform, "platform", "", "platform")
	fs.StringVar(&opts.ListSource, "l", "", "handle list source")
	fs.StringVar(&opts.ListSource, "list", "", "handle list source")
	fs.StringVar(&opts.ProxySource, "proxies", "", "proxy list source")
	fs.StringVar(&proxyCSV, "proxy", "", "comma-separated proxies")
	fs.StringVar(&opts.ConfigFile, "config", "", "config file")
	fs.StringVar(&opts.EnvFile, "env", ".env", "dotenv file")
	fs.StringVar(&opts.RulesFile, "rules", "", "instagram rules file")
	fs.IntVar(&opts.Concurrency, "concurrency", 0, "max concurrent requests")
	fs.Float64Var(&opts.Delay, "delay", 0, "delay between dispatches in seconds")
	fs.IntVar(&opts.Timeout, "timeout", 0, "per-check timeout in seconds")
	fs.StringVar(&opts.WebhookURL, "webhook", "", "discord webhook url")
	fs.StringVar(&opts.Database, "journal", "", "sqlite journal path")
	fs.StringVar(&opts.ResultsDir, "results", "results", "results output directory")
	fs.StringVar(&opts.UserAgent, "user-agent", "", "user agent")

	if err := fs.Parse(args); err != nil {
		return Options{}, nil, err
	}
	if help {
		fs.Usage()
		return Options{}, nil, ErrHelp
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if canon, ok := aliases[name]; ok {
			name = canon
		}
		opts.set[name] = true
	})

	if opts.set["timeout"] && opts.Timeout <= 0 {
		// Don't allow zero or negative timeouts; fall back to the platform default.
		delete(opts.set, "timeout")
		warn(stdout, opts.NoColor, "Invalid timeout value; using the platform default.")
	}
	if opts.set["delay"] && opts.Delay < 0 {
		delete(opts.set, "delay")
		warn(stdout, opts.NoColor, "Invalid delay value; using the platform default.")
	}
	if opts.set["concurrency"] && opts.Concurrency <= 0 {
		delete(opts.set, "concurrency")
		warn(stdout, opts.NoColor, "Invalid concurrency value; using the platform default.")
	}

	if proxyCSV != "" {
		for _, p := range strings.Split(proxyCSV, ",") {
			if p = strings.TrimSpace(p); p != "" {
				opts.Proxies = append(opts.Proxies, p)
			}
		}
	}

	return opts, fs.Args(), nil
}

// IsSet reports whether the flag was given, by canonical name.
func (o Options) IsSet(name string) bool {
	return o.set[name]
}

// Apply overlays the flags given on the command line onto cfg.
func (o Options) Apply(cfg *config.Config) {
	if o.set["platform"] {
		cfg.Platform = strings.ToLower(strings.TrimSpace(o.Platform))
	}
	if o.set["concurrency"] {
		cfg.Concurrency = o.Concurrency
	}
	if o.set["delay"] {
		cfg.Delay = strconv.FormatFloat(o.Delay, 'f', -1, 64) + "s"
	}
	if o.set["timeout"] {
		cfg.Timeout = strconv.Itoa(o.Timeout) + "s"
	}
	if o.set["proxies"] {
		cfg.ProxyFile = o.ProxySource
	}
	if len(o.Proxies) > 0 {
		cfg.Proxies = append(cfg.Proxies, o.Proxies...)
	}
	if o.set["rules"] {
		cfg.RulesFile = o.RulesFile
	}
	if o.set["webhook"] {
		cfg.WebhookURL = o.WebhookURL
	}
	if o.set["journal"] {
		cfg.Database = o.Database
	}
	if o.set["results"] {
		cfg.ResultsDir = o.ResultsDir
	}
	if o.set["user-agent"] {
		cfg.UserAgent = o.UserAgent
	}
	cfg.Debug = cfg.Debug || o.Debug
	cfg.RetryRateLimited = cfg.RetryRateLimited || o.RetryRateLimited
	cfg.SkipChecked = cfg.SkipChecked || o.SkipChecked
	cfg.NoColor = cfg.NoColor || o.NoColor
	cfg.NoOutput = cfg.NoOutput || o.NoOutput
}

func warn(stdout io.Writer, noColor bool, msg string) {
	if noColor {
		fmt.Fprintf(stdout, "[!] %s\n", msg)
		return
	}
	fmt.Fprintf(stdout, "[%s] %s\n", color.HiRedString("!"), color.HiYellowString(msg))
}
