package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

// ListOptions holds the list command flags.
type ListOptions struct {
	PageSize int32
	Cursor   string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list <object>",
		Short: "List records of one type in ID order",
		Long: `List one page of Account, Contact, Opportunity, Lead or Case records.
Pass the printed cursor to --cursor to get the next page.`,
		Args:      checkArgs(rootOpts, cobra.ExactArgs(1)),
		ValidArgs: objectNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			object, err := parseObject(args[0])
			if err != nil {
				return report(cmd, rootOpts, err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) (any, error) {
				page, err := s.backend.List(ctx, object, store.CursorParams{
					PageSize: opts.PageSize,
					Cursor:   opts.Cursor,
				})
				if err != nil {
					return nil, err
				}
				return listPage{
					Records:    recordList(page.Items),
					NextCursor: page.NextCursor,
					TotalCount: page.TotalCount,
				}, nil
			})
		},
	}

	cmd.Flags().Int32Var(&opts.PageSize, "page-size", 20, "records per page")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "cursor from the previous page")
	return cmd
}

func objectNames() []string {
	schemas := records.Registry().List()
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Object.String()
	}
	return names
}

// parseObject matches an object name case-insensitively.
func parseObject(name string) (store.ObjectType, error) {
	for _, s := range records.Registry().List() {
		if strings.EqualFold(s.Object.String(), name) {
			return s.Object, nil
		}
	}
	return "", WrapExitError(ExitCommandError, "invalid object",
		fmt.Errorf("%q is not one of %v", name, objectNames()))
}

type listPage struct {
	Records    recordList `json:"records"`
	NextCursor string     `json:"next_cursor,omitempty"`
	TotalCount int64      `json:"total_count,omitempty"`
}

func (p listPage) String() string {
	var sb strings.Builder
	sb.WriteString(p.Records.String())
	if p.TotalCount > 0 {
		fmt.Fprintf(&sb, "\ntotal: %d", p.TotalCount)
	}
	if p.NextCursor != "" {
		fmt.Fprintf(&sb, "\nnext cursor: %s", p.NextCursor)
	}
	return sb.String()
}

// recordList prints one record per line: type, ID, then the non-empty
// columns in name order.
type recordList []store.Record

func (l recordList) String() string {
	if len(l) == 0 {
		return "no records"
	}
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, rec := range l {
		values := rec.Values()
		fields := make([]string, 0, len(values))
		for _, col := range slices.Sorted(maps.Keys(values)) {
			switch col {
			case store.ColumnID, store.ColumnCreatedAt, store.ColumnUpdatedAt:
				continue
			}
			if s := formatValue(values[col]); s != "" {
				fields = append(fields, col+"="+s)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Object(), rec.GetID(), strings.Join(fields, " "))
	}
	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(time.DateOnly)
	case string:
		if strings.ContainsAny(x, " \t") {
			return fmt.Sprintf("%q", x)
		}
		return x
	case int:
		if x == 0 {
			return ""
		}
		return fmt.Sprint(x)
	default:
		return fmt.Sprint(x)
	}
}
