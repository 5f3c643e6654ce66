package audit

import (
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxSummaryPathWidth = 40

// Summary renders one row per audited collection.
func (r *Reporter) Summary(rc *RunContext) error {
	table := tablewriter.NewWriter(r.Out)
	table.Header([]string{"Collection", "Path", "Documents", "Warning", "Error", "Status"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	title := cases.Title(language.English)
	data := make([][]string, 0, len(rc.Outcomes))
	for _, o := range rc.Outcomes {
		label := o.Label
		if label == "" {
			label = title.String(o.Collection)
		}
		data = append(data, []string{
			label,
			runewidth.Truncate(o.Path, maxSummaryPathWidth, "…"),
			strconv.Itoa(o.Documents),
			yesNo(o.Warning),
			yesNo(o.Error),
			status(o),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func status(o CollectionOutcome) string {
	switch {
	case o.Fault != nil:
		return "fault"
	case o.Error:
		return "error"
	case o.Warning:
		return "warning"
	default:
		return "ok"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
