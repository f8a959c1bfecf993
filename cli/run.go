package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slighter12/qualityos-mcp-go/quality/engine"
)

type runOptions struct {
	draftPath   string
	moduleKey   string
	industryKey string
	proofPath   string
	brandPath   string
	maxPasses   int
	copyOnly    bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate one draft and print the result",
		Long: `run evaluates a single draft against the configured rule catalog and prints
the run result (final copy, scorecard, stop reason and pass log) as JSON.
Use --draft - to read the draft from stdin. Proof packs and brand styles are
YAML or JSON files.`,
		Example: `  qualityos run --module landing --draft draft.txt --proof proof.yaml
  echo "지금 바로 신청하세요" | qualityos run --module push --draft - --copy-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, root)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.draftPath, "draft", "", "Draft file, or - for stdin")
	flags.StringVarP(&opts.moduleKey, "module", "m", "", "Copy module key (landing, detail, sns, push, faq, ...)")
	flags.StringVar(&opts.industryKey, "industry", "", "Industry key selecting the rewrite-map override (lexicons, disclaimers, specificity topics)")
	flags.StringVar(&opts.proofPath, "proof", "", "Proof pack file (YAML or JSON)")
	flags.StringVar(&opts.brandPath, "brand", "", "Brand style file (YAML or JSON)")
	flags.IntVar(&opts.maxPasses, "max-passes", 0, "Pass budget; 0 uses the configured default")
	flags.BoolVar(&opts.copyOnly, "copy-only", false, "Print only the final copy")
	_ = cmd.MarkFlagRequired("draft")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, root *rootOptions) error {
	cfg, _, err := root.loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg.Logging, true); err != nil {
		return err
	}

	draft, err := readDraft(cmd.InOrStdin(), o.draftPath)
	if err != nil {
		return err
	}
	req := engine.Request{
		ModuleKey:   o.moduleKey,
		IndustryKey: o.industryKey,
		Draft:       draft,
		MaxPasses:   o.maxPasses,
	}
	if o.proofPath != "" {
		if err := decodeYAMLFile(o.proofPath, &req.ProofPack); err != nil {
			return err
		}
	}
	if o.brandPath != "" {
		if err := decodeYAMLFile(o.brandPath, &req.BrandStyle); err != nil {
			return err
		}
	}

	stack, err := newEngineStack(cfg, nil)
	if err != nil {
		return err
	}
	result, err := stack.runner.Run(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.copyOnly {
		_, err := fmt.Fprintln(out, result.FinalCopy)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

func readDraft(stdin io.Reader, path string) (string, error) {
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
		return "", fmt.Errorf("read draft: %w", err)
	}
	draft := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(draft) == "" {
		return "", errors.New("draft is empty")
	}
	return draft, nil
}

// decodeYAMLFile reads a YAML (or JSON, which YAML accepts) document into v.
func decodeYAMLFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
