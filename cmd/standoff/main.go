// Command standoff converts XML documents to standoff annotations and back,
// edits annotations, queries them and stores them in bundles or SQLite.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/standoffconverter/core/bundle"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
	"github.com/FocuswithJustin/standoffconverter/core/sqlite"
	"github.com/FocuswithJustin/standoffconverter/core/standoff"
	"github.com/FocuswithJustin/standoffconverter/internal/config"
	"github.com/FocuswithJustin/standoffconverter/internal/logging"
	"github.com/FocuswithJustin/standoffconverter/internal/validation"
)

const version = "0.1.0"

// stdout is where "-" outputs go.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for standoff.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"YAML configuration file" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`

	Flatten  FlattenCmd  `cmd:"" help:"Convert an XML document to plain text and annotations"`
	Rebuild  RebuildCmd  `cmd:"" help:"Convert plain text and annotations back to XML"`
	Annotate AnnotateCmd `cmd:"" help:"Add an annotation to an XML document"`
	Remove   RemoveCmd   `cmd:"" help:"Remove an annotation from an XML document"`
	Query    QueryCmd    `cmd:"" help:"Query annotations with a filter chain or XPath"`
	Pack     PackCmd     `cmd:"" help:"Pack an XML document into a bundle"`
	Unpack   UnpackCmd   `cmd:"" help:"Unpack and verify a bundle"`
	DB       DBGroup     `cmd:"" name:"db" help:"SQLite document storage"`
	Settings ConfigCmd   `cmd:"" name:"config" help:"Print the effective configuration"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// DBGroup contains SQLite storage operations.
type DBGroup struct {
	Save   DBSaveCmd   `cmd:"" help:"Store an XML document"`
	Load   DBLoadCmd   `cmd:"" help:"Rebuild a stored document as XML"`
	List   DBListCmd   `cmd:"" help:"List stored documents"`
	Delete DBDeleteCmd `cmd:"" help:"Delete a stored document"`
}

// FlattenCmd writes the JSON form {"plain", "annotations"} of a document.
type FlattenCmd struct {
	Path string `arg:"" help:"XML document" type:"existingfile"`
	Out  string `short:"o" help:"Output file (- for stdout)" default:"-"`
}

func (c *FlattenCmd) Run() error {
	s, err := standoff.LoadFile(c.Path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}
	return writeOutput(c.Out, append(data, '\n'))
}

// RebuildCmd reads the JSON form of a document and writes XML.
type RebuildCmd struct {
	Path string `arg:"" help:"JSON document with plain and annotations" type:"existingfile"`
	Out  string `short:"o" help:"Output file (- for stdout)" default:"-"`
}

func (c *RebuildCmd) Run() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return errors.NewIO("read", c.Path, err)
	}
	var doc standoff.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.NewParse("JSON", c.Path, err.Error())
	}
	s, err := standoff.FromDocument(doc)
	if err != nil {
		return err
	}
	return saveStore(c.Out, s)
}

// AnnotateCmd adds one annotation and writes the edited document.
type AnnotateCmd struct {
	Path            string   `arg:"" help:"XML document" type:"existingfile"`
	Begin           int      `required:"" help:"First character offset"`
	End             int      `required:"" help:"Offset after the last character"`
	Tag             string   `required:"" help:"Element tag, optionally prefixed"`
	Attr            []string `help:"Attribute as key=value, repeatable" sep:"none"`
	Depth           int      `help:"Depth among annotations with the same span"`
	AllowDuplicates bool     `help:"Add even if an identical annotation exists"`
	Out             string   `short:"o" help:"Output file (- for stdout)" default:"-"`
}

func (c *AnnotateCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	attrib, err := parseAttrs(c.Attr)
	if err != nil {
		return err
	}
	s, err := standoff.LoadFile(c.Path)
	if err != nil {
		return err
	}
	unique := cfg.Edit.Unique && !c.AllowDuplicates
	if _, err := s.AddAnnotation(c.Begin, c.End, c.Tag, c.Depth, attrib, unique); err != nil {
		return err
	}
	return saveStore(c.Out, s)
}

// RemoveCmd removes the first annotation with the given span and tag.
type RemoveCmd struct {
	Path  string `arg:"" help:"XML document" type:"existingfile"`
	Begin int    `required:"" help:"First character offset"`
	End   int    `required:"" help:"Offset after the last character"`
	Tag   string `required:"" help:"Element tag"`
	Out   string `short:"o" help:"Output file (- for stdout)" default:"-"`
}

func (c *RemoveCmd) Run() error {
	s, err := standoff.LoadFile(c.Path)
	if err != nil {
		return err
	}
	target := findAnnotation(s, c.Begin, c.End, c.Tag)
	if target == nil {
		return errors.NewNotFound("annotation", fmt.Sprintf("%s[%d,%d)", c.Tag, c.Begin, c.End))
	}
	if err := s.RemoveAnnotation(target); err != nil {
		return err
	}
	return saveStore(c.Out, s)
}

// QueryCmd prints the annotations selected by a filter chain such as
// "/text/p -note", or by an XPath expression.
type QueryCmd struct {
	Path      string `arg:"" help:"XML document" type:"existingfile"`
	Chain     string `arg:"" optional:"" help:"Filter chain, e.g. '/text/p -note'"`
	XPath     string `name:"xpath" help:"XPath expression instead of a filter chain"`
	Namespace string `help:"Namespace URI to match tags in (overrides config)"`
	JSON      bool   `help:"Print results as JSON"`
}

type queryResult struct {
	Begin int    `json:"begin"`
	End   int    `json:"end"`
	Tag   string `json:"tag"`
	Text  string `json:"text"`
}

func (c *QueryCmd) Run() error {
	if (c.Chain == "") == (c.XPath == "") {
		return errors.NewValidation("query", "give exactly one of a filter chain or --xpath")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := standoff.LoadFile(c.Path)
	if err != nil {
		return err
	}

	var results []queryResult
	if c.XPath != "" {
		anns, err := s.Select(c.XPath)
		if err != nil {
			return err
		}
		for _, a := range anns {
			results = append(results, queryResult{a.Begin, a.End, a.Tag, s.Text(a)})
		}
	} else {
		chain, err := standoff.ParseChain(c.Chain)
		if err != nil {
			return err
		}
		ns := cfg.Filter.Namespace
		if c.Namespace != "" {
			ns = c.Namespace
		}
		for _, r := range chain.Apply(standoff.NewFilter(s, ns)).Results() {
			a := r.Annotation
			results = append(results, queryResult{a.Begin, a.End, a.Tag, r.Text})
		}
	}

	if c.JSON {
		if results == nil {
			results = []queryResult{}
		}
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%q\n", r.Begin, r.End, r.Tag, r.Text)
	}
	return tw.Flush()
}

// PackCmd packs an XML document into a bundle.
type PackCmd struct {
	Path        string `arg:"" help:"XML document" type:"existingfile"`
	Out         string `short:"o" required:"" help:"Output bundle path" type:"path"`
	Compression string `help:"Compression (xz, gzip); overrides config"`
}

func (c *PackCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := cfg.Bundle.Compression
	if c.Compression != "" {
		name = c.Compression
	}
	if err := validation.ValidatePath(c.Out); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	compression, err := bundle.ParseCompression(name)
	if err != nil {
		return err
	}
	s, err := standoff.LoadFile(c.Path)
	if err != nil {
		return err
	}
	m, err := bundle.PackFile(c.Out, s, &bundle.Options{Compression: compression})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Packed %s: %d annotations, %d chars, id %s\n", c.Out, m.Annotations, m.Chars, m.ID)
	return nil
}

// UnpackCmd verifies a bundle and writes its document.
type UnpackCmd struct {
	Path    string `arg:"" help:"Bundle path" type:"existingfile"`
	Out     string `short:"o" help:"Output file (- for stdout)" default:"-"`
	Records bool   `help:"Write the JSON form instead of XML"`
}

func (c *UnpackCmd) Run() error {
	b, err := bundle.UnpackFile(c.Path)
	if err != nil {
		return err
	}
	if c.Records {
		data, err := json.MarshalIndent(b.Store.Document(), "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(c.Out, append(data, '\n'))
	}
	return saveStore(c.Out, b.Store)
}

// DBSaveCmd stores an XML document in SQLite.
type DBSaveCmd struct {
	Path string `arg:"" help:"XML document" type:"existingfile"`
	Name string `help:"Document name (defaults to the file name)"`
	DSN  string `name:"dsn" help:"SQLite database (overrides config)"`
}

func (c *DBSaveCmd) Run() error {
	db, err := openDB(c.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := standoff.LoadFile(c.Path)
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		name = c.Path
	}
	id, err := sqlite.SaveDocument(db, s, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, id)
	return nil
}

// DBLoadCmd rebuilds a stored document.
type DBLoadCmd struct {
	ID  string `arg:"" help:"Document id"`
	DSN string `name:"dsn" help:"SQLite database (overrides config)"`
	Out string `short:"o" help:"Output file (- for stdout)" default:"-"`
}

func (c *DBLoadCmd) Run() error {
	db, err := openDB(c.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := sqlite.LoadDocument(db, c.ID)
	if err != nil {
		return err
	}
	return saveStore(c.Out, s)
}

// DBListCmd lists stored documents.
type DBListCmd struct {
	DSN string `name:"dsn" help:"SQLite database (overrides config)"`
}

func (c *DBListCmd) Run() error {
	db, err := openDB(c.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := sqlite.ListDocuments(db)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCHARS\tANNOTATIONS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", d.ID, d.Name, d.Chars, d.Annotations, d.CreatedAt)
	}
	return tw.Flush()
}

// DBDeleteCmd deletes a stored document.
type DBDeleteCmd struct {
	ID  string `arg:"" help:"Document id"`
	DSN string `name:"dsn" help:"SQLite database (overrides config)"`
}

func (c *DBDeleteCmd) Run() error {
	db, err := openDB(c.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return sqlite.DeleteDocument(db, c.ID)
}

// ConfigCmd prints the configuration after flags are applied.
type ConfigCmd struct{}

func (c *ConfigCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "standoff version %s (sqlite driver %s, %s)\n", version, info.DriverName, info.DriverType)
	return nil
}

// Helper functions

// loadConfig reads the --config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.LogLevel != "" {
		cfg.Log.Level = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.Log.Format = CLI.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

func openDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dsn = cfg.SQLite.DSN
	}
	return sqlite.Open(dsn)
}

func parseAttrs(pairs []string) (standoff.Attrib, error) {
	var attrib standoff.Attrib
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return attrib, errors.NewValidation("attr", fmt.Sprintf("%q is not key=value", p))
		}
		attrib.Set(k, v)
	}
	return attrib, nil
}

func findAnnotation(s *standoff.Store, begin, end int, tag string) *standoff.Annotation {
	for _, a := range s.Annotations() {
		if a.Begin == begin && a.End == end && a.Tag == tag {
			return a
		}
	}
	return nil
}

func saveStore(path string, s *standoff.Store) error {
	if path == "-" {
		if err := s.Save(stdout); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout)
		return err
	}
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	return s.SaveFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.NewIO("write", path, err)
	}
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("standoff"),
		kong.Description("Standoff converter - XML trees to standoff annotations and back"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	cfg, err := loadConfig()
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(setupLogging(cfg))

	err = ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
