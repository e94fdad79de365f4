package borrowck

import (
	"fmt"

	"borrowck/internal/diag"
	"borrowck/internal/place"
	"borrowck/internal/source"
)

// report starts an error diagnostic and counts it toward the stop policy.
func (c *checker) report(code diag.Code, span source.Span, format string, args ...any) *diag.ReportBuilder {
	c.errors++
	if c.opts.StopOnFirstError {
		c.stopped = true
	}
	return diag.ReportError(c.opts.Reporter, code, span, fmt.Sprintf(format, args...))
}

// reportConflict emits an aliasing diagnostic annotated with the borrow the
// access collided with.
func (c *checker) reportConflict(span source.Span, issue Issue, format string, args ...any) {
	b := c.report(diag.BckAliasingConflict, span, format, args...)
	if issue.Kind == IssueConflict {
		if info := c.borrows.Info(issue.Borrow); info != nil {
			b = b.WithNote(info.Span, fmt.Sprintf("%s borrow of '%s' created here",
				info.Kind, c.placeLabel(info.Place)))
		}
	}
	b.Emit()
}

func (c *checker) placeLabel(pl place.PlaceID) string {
	return c.fn.Places.Label(pl, c.opts.Strings)
}

func (c *checker) bindingLabel(id place.BindingID) string {
	return c.placeLabel(c.fn.Places.Root(id))
}
