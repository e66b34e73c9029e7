package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

// tagFlag collects repeated --tag name=value flags in order.
type tagFlag struct {
	tags []arweave.Tag
}

var _ pflag.Value = (*tagFlag)(nil)

func (f *tagFlag) String() string {
	parts := make([]string, len(f.tags))
	for i, t := range f.tags {
		parts[i] = t.Name + "=" + t.Value
	}
	return strings.Join(parts, ",")
}

// Set parses one name=value pair. The value may contain '='.
func (f *tagFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("invalid tag %q: want name=value", s)
	}
	f.tags = append(f.tags, arweave.Tag{Name: name, Value: value})
	return nil
}

func (f *tagFlag) Type() string {
	return "name=value"
}

// Tags returns the parsed tags.
func (f *tagFlag) Tags() []arweave.Tag {
	return f.tags
}

// deployFlags holds the flags of the deploy command.
type deployFlags struct {
	index         string
	tags          tagFlag
	license       string
	contentType   string
	feeMultiplier float64
	bundler       string
	localBundle   bool
	force         bool
	concurrency   int
	exclude       []string
	yes           bool
	noInteractive bool
	output        string
}

func (f *deployFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.index, "index", "", "manifest index path (default: index.html or the first file)")
	fs.Var(&f.tags, "tag", "add a tag to every file (repeatable)")
	fs.StringVar(&f.license, "license", "", "license transaction id to tag files with")
	fs.StringVar(&f.contentType, "content-type", "", "override the detected content type")
	fs.Float64Var(&f.feeMultiplier, "fee-multiplier", 1, "multiply network fees to speed up mining")
	fs.StringVar(&f.bundler, "use-bundler", "", "post files as data items to this bundler URL")
	fs.BoolVar(&f.localBundle, "bundle", false, "pack every file into one bundle transaction")
	fs.BoolVarP(&f.force, "force", "f", false, "upload files even when already deployed")
	fs.IntVarP(&f.concurrency, "concurrency", "c", 0, "files processed at once (default from config)")
	fs.StringSliceVarP(&f.exclude, "exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	fs.BoolVarP(&f.yes, "yes", "y", false, "deploy without asking for confirmation")
	fs.BoolVarP(&f.noInteractive, "no-interactive", "n", false, "disable the progress view")
	fs.StringVarP(&f.output, "output", "o", "pretty", "summary format: pretty, plain, json, yaml, tsv")
}

// validate rejects flag combinations that cannot be honored.
func (f *deployFlags) validate() error {
	if f.bundler != "" && f.localBundle {
		return fmt.Errorf("--use-bundler and --bundle are mutually exclusive")
	}
	if f.feeMultiplier < 1 {
		return fmt.Errorf("--fee-multiplier must be at least 1, got %g", f.feeMultiplier)
	}
	if f.concurrency < 0 {
		return fmt.Errorf("--concurrency must not be negative, got %d", f.concurrency)
	}
	return nil
}
