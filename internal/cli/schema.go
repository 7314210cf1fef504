package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/schema"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Dir string
}

// SchemaReport is the JSON form of the schema command output.
type SchemaReport struct {
	Tables []TableReport `json:"tables"`
}

// TableReport describes one table, its references and its channel.
type TableReport struct {
	Name       string          `json:"name"`
	Fields     []FieldReport   `json:"fields"`
	References []RefReport     `json:"references,omitempty"`
	Referrers  []BackrefReport `json:"referrers,omitempty"`
	Channel    ChannelReport   `json:"channel"`
}

// FieldReport describes one declared field.
type FieldReport struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// RefReport is a forward reference held by one of the table's fields.
type RefReport struct {
	Field  string `json:"field"`
	Target string `json:"target"`
	Many   bool   `json:"many,omitempty"`
}

// BackrefReport names a field in another table pointing at this one.
type BackrefReport struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// ChannelReport lists the subscription filters a table accepts.
type ChannelReport struct {
	IDField string               `json:"id_field"`
	Range   *schema.RangeFilter  `json:"range,omitempty"`
	Status  *schema.StatusFilter `json:"status,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print tables, references and subscription channels",
		Long: `Load the CUE schema and print every table with its fields, the
forward references it holds, the tables that reference it and the
subscription filters its channel accepts.

Example:
  livedoc schema
  livedoc schema --dir ./schema --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "schema directory (overrides schema.dir)")

	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	dir := opts.Dir
	if dir == "" {
		cfg, logger, err := loadConfig(opts.RootOptions, formatter)
		if err != nil {
			return err
		}
		_ = logger.Sync()
		dir = cfg.Schema.Dir
	}

	formatter.VerboseLog("Loading schema from %s", dir)
	s, err := schema.LoadDir(dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeSchema, "failed to load schema", err)
	}

	report := buildSchemaReport(s)
	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	writeSchemaReport(formatter.Writer, report)
	return nil
}

func buildSchemaReport(s *schema.Schema) SchemaReport {
	refs := s.Refs()
	report := SchemaReport{Tables: make([]TableReport, 0, len(s.Tables()))}
	for _, t := range s.Tables() {
		tr := TableReport{
			Name:   t.Name,
			Fields: make([]FieldReport, 0, len(t.Fields)),
		}
		for _, r := range refs.ForwardFields(t.Name) {
			tr.References = append(tr.References, RefReport{Field: r.Field, Target: r.Target, Many: r.Many})
		}
		for _, f := range t.Fields {
			tr.Fields = append(tr.Fields, FieldReport{
				Name:     f.Name,
				Type:     fieldType(f),
				Optional: f.Optional,
				Nullable: f.Nullable,
			})
		}
		for _, b := range refs.Backward(t.Name) {
			tr.Referrers = append(tr.Referrers, BackrefReport{Table: b.Table, Field: b.Field})
		}
		if c, ok := s.Channel(t.Name); ok {
			tr.Channel = ChannelReport{IDField: c.IDField, Range: c.Range, Status: c.Status}
		}
		report.Tables = append(report.Tables, tr)
	}
	return report
}

// fieldType renders a field kind, e.g. "ref(users)" or "array<ref(users)>".
func fieldType(f schema.Field) string {
	switch f.Kind {
	case schema.KindReference:
		return fmt.Sprintf("ref(%s)", f.Target)
	case schema.KindArray:
		if f.Elem == nil {
			return "array"
		}
		return fmt.Sprintf("array<%s>", fieldType(*f.Elem))
	default:
		return string(f.Kind)
	}
}

func writeSchemaReport(w io.Writer, report SchemaReport) {
	fmt.Fprintf(w, "%d table(s)\n", len(report.Tables))
	for _, t := range report.Tables {
		fmt.Fprintf(w, "\n%s\n", t.Name)
		for _, f := range t.Fields {
			var flags []string
			if f.Optional {
				flags = append(flags, "optional")
			}
			if f.Nullable {
				flags = append(flags, "nullable")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " (" + strings.Join(flags, ", ") + ")"
			}
			fmt.Fprintf(w, "  %s: %s%s\n", f.Name, f.Type, suffix)
		}
		for _, r := range t.References {
			fmt.Fprintf(w, "  → %s references %s\n", r.Field, r.Target)
		}
		for _, b := range t.Referrers {
			fmt.Fprintf(w, "  ← %s.%s\n", b.Table, b.Field)
		}
		fmt.Fprintf(w, "  channel: id=%s", t.Channel.IDField)
		if r := t.Channel.Range; r != nil {
			fmt.Fprintf(w, " range=%s[%g..%g]", r.Field, r.Min, r.Max)
		}
		if st := t.Channel.Status; st != nil {
			fmt.Fprintf(w, " status=%s{%s}", st.Field, strings.Join(st.Values, ","))
		}
		fmt.Fprintln(w)
	}
}
