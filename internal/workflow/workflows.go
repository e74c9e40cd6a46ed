package workflow

import (
	"strings"

	"github.com/simplesurance/stagecoord/internal/stringutils"
)

type Workflows []*Workflow

func (ww Workflows) String() string {
	var result strings.Builder

	for i, w := range ww {
		result.WriteString(stringutils.IndentString(w.DetailedString(), "  "))
		if i < len(ww)-1 {
			result.WriteRune('\n')
		}
	}

	return result.String()
}
