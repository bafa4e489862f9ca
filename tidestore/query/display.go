package query

import (
	"fmt"
	"strings"
)

// planFormatter tracks indentation while rendering a plan tree as text.
type planFormatter struct {
	indent    int
	indentInc int
}

func newPlanFormatter() *planFormatter {
	return &planFormatter{indent: 0, indentInc: 4}
}

func (f *planFormatter) printIndent(sb *strings.Builder) {
	for i := 0; i < f.indent; i++ {
		sb.WriteByte(' ')
	}
}

func (f *planFormatter) incIndent() { f.indent += f.indentInc }
func (f *planFormatter) decIndent() { f.indent -= f.indentInc }

// displayIter renders an iterator subtree. Used by PreparedStatement's
// query-plan string and by trace output.
func displayIter(sb *strings.Builder, f *planFormatter, iter planIter) {
	f.printIndent(sb)
	sb.WriteString(iter.displayName())
	fmt.Fprintf(sb, " ([%d])\n", iter.getResultReg())
	f.printIndent(sb)
	sb.WriteString("[\n")
	f.incIndent()
	iter.displayContent(sb, f)
	f.decIndent()
	sb.WriteByte('\n')
	f.printIndent(sb)
	sb.WriteString("]")
}

func displayPlan(iter planIter) string {
	var sb strings.Builder
	displayIter(&sb, newPlanFormatter(), iter)
	return sb.String()
}
