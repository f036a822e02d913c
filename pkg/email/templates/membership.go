package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// PlanChange is the data shown in membership notification mails.
type PlanChange struct {
	Name     string
	Headline string
	Lines    []string
	Amount   string
	ChargeID string
	Card     string
}

// layout wraps body in the shared mail frame.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!doctype html><html><head><meta charset="utf-8"><title>%s</title></head><body style="font-family:sans-serif">`, templ.EscapeString(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<p style="color:#888">NAGOYAMESHI</p></body></html>`)
		return err
	})
}

// PlanChangeMail renders a plan change notice. All values are escaped.
func PlanChangeMail(p PlanChange) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<h1>%s</h1><p>%s 様</p>", templ.EscapeString(p.Headline), templ.EscapeString(p.Name)); err != nil {
			return err
		}
		for _, line := range p.Lines {
			if _, err := fmt.Fprintf(w, "<p>%s</p>", templ.EscapeString(line)); err != nil {
				return err
			}
		}
		rows := [][2]string{{"金額", p.Amount}, {"決済ID", p.ChargeID}, {"カード", p.Card}}
		var open bool
		for _, row := range rows {
			if row[1] == "" {
				continue
			}
			if !open {
				if _, err := io.WriteString(w, "<table>"); err != nil {
					return err
				}
				open = true
			}
			if _, err := fmt.Fprintf(w, "<tr><th>%s</th><td>%s</td></tr>", templ.EscapeString(row[0]), templ.EscapeString(row[1])); err != nil {
				return err
			}
		}
		if open {
			_, err := io.WriteString(w, "</table>")
			return err
		}
		return nil
	})
	return layout(p.Headline, body)
}
