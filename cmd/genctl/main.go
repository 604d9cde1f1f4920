package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/genledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultServer = "http://localhost:5000"

var (
	serverURL string
	cfgFile   string
	format    string
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "genctl",
	Short: "genledger CLI",
	Long: `genctl is the command-line client for a genledger service.

It requests summaries, answers and learning paths, and checks verification
hashes against the service's ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.genctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("GENCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = defaultServer
		}
		if format != "text" && format != "json" {
			return fmt.Errorf("unknown format %q (want text or json)", format)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.genctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "genledger base URL (default "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Request timeout")

	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(qaCmd)
	rootCmd.AddCommand(learningPathCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.WithTimeout(timeout))
}

// ── summarize ────────────────────────────────────────────────────────────────

var summarizeFile string

var summarizeCmd = &cobra.Command{
	Use:   "summarize [text]",
	Short: "Summarize text",
	Long: `Summarize sends text to the service and prints the summary with its
verification hash. Text comes from the arguments, --file, or stdin when
neither is given:

  genctl summarize --file article.txt
  cat article.txt | genctl summarize`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args, summarizeFile)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Summarize(cmd.Context(), text)
		if err != nil {
			return err
		}
		return printGenerated(cmd.OutOrStdout(), "summary", res.Summary, res.VerificationHash, res)
	},
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeFile, "file", "f", "", "read text from file ('-' for stdin)")
}

// ── qa ───────────────────────────────────────────────────────────────────────

var (
	qaContext     string
	qaContextFile string
)

var qaCmd = &cobra.Command{
	Use:   "qa <question>",
	Short: "Answer a question from a supplied context",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxText := qaContext
		if qaContextFile != "" {
			data, err := readFile(cmd.InOrStdin(), qaContextFile)
			if err != nil {
				return err
			}
			ctxText = data
		}
		if strings.TrimSpace(ctxText) == "" {
			return errors.New("a context is required (--context or --context-file)")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Answer(cmd.Context(), ctxText, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printGenerated(cmd.OutOrStdout(), "answer", res.Answer, res.VerificationHash, res)
	},
}

func init() {
	qaCmd.Flags().StringVar(&qaContext, "context", "", "context text the answer must come from")
	qaCmd.Flags().StringVar(&qaContextFile, "context-file", "", "read context from file ('-' for stdin)")
}

// ── learning-path ────────────────────────────────────────────────────────────

var learningPathCmd = &cobra.Command{
	Use:   "learning-path <topic>",
	Short: "Generate a markdown learning path for a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.LearningPath(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printGenerated(cmd.OutOrStdout(), "learning path", res.LearningPath, res.VerificationHash, res)
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyResponseFile string

var verifyCmd = &cobra.Command{
	Use:   "verify [hash]",
	Short: "Check a verification hash against the ledger",
	Long: `Verify looks a hash up in the service's ledger.

With --response, the hash is recomputed from a saved JSON response (as
printed by --format json) instead of trusting its verification_hash, so an
edited response is reported as not found:

  genctl summarize --format json -f article.txt > summary.json
  genctl verify --response summary.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 1) == (verifyResponseFile != "") {
			return errors.New("give either a hash or --response")
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		var v *client.Verification
		if verifyResponseFile != "" {
			raw, rerr := readFile(cmd.InOrStdin(), verifyResponseFile)
			if rerr != nil {
				return rerr
			}
			payload, perr := payloadFromResponse([]byte(raw))
			if perr != nil {
				return perr
			}
			v, err = c.VerifyPayload(cmd.Context(), payload)
		} else {
			v, err = c.Verify(cmd.Context(), args[0])
		}
		if errors.Is(err, client.ErrNotFound) {
			return printNotFound(cmd.OutOrStdout())
		}
		if err != nil {
			return err
		}
		return printVerification(cmd.OutOrStdout(), v)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyResponseFile, "response", "", "saved JSON response to verify ('-' for stdin)")
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show how many hashes the ledger holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		o, err := c.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), o)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\n", o.Entries)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the genctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "genctl %s\n", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

// errNotRecorded makes the process exit non-zero after a not-found report.
var errNotRecorded = errors.New("hash not on record")

// readInput returns text from args, from file, or from stdin, in that order.
func readInput(stdin io.Reader, args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if file == "" {
		file = "-"
	}
	return readFile(stdin, file)
}

func readFile(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// payloadFromResponse strips verification_hash from a saved response,
// leaving the part the service hashed.
func payloadFromResponse(raw []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	delete(payload, "verification_hash")
	if len(payload) == 0 {
		return nil, errors.New("response has no content besides verification_hash")
	}
	return payload, nil
}

func printGenerated(w io.Writer, label, text, hash string, v any) error {
	if format == "json" {
		return writeJSON(w, v)
	}
	fmt.Fprintf(w, "%s\n\n", text)
	fmt.Fprintf(w, "Verification hash (%s): %s\n", label, hash)
	return nil
}

func printVerification(w io.Writer, v *client.Verification) error {
	if format == "json" {
		return writeJSON(w, v)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", v.Status)
	fmt.Fprintf(tw, "Hash:\t%s\n", v.Hash)
	fmt.Fprintf(tw, "Recorded:\t%s\n", v.RecordedDetails.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(tw, "Type:\t%s\n", v.RecordedDetails.DataType)
	fmt.Fprintf(tw, "Preview:\t%s\n", v.RecordedDetails.OriginalDataPreview)
	if v.Receipt != "" {
		fmt.Fprintf(tw, "Receipt:\t%s\n", v.Receipt)
	}
	return tw.Flush()
}

func printNotFound(w io.Writer) error {
	if format == "json" {
		if err := writeJSON(w, map[string]string{"status": "not_found"}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, "Status: not_found (never recorded, or the content was altered)")
	}
	return errNotRecorded
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
