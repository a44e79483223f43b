package output

import (
	"bufio"
	"io"

	"github.com/jmylchreest/compstack/internal/model"
)

// IDsFormatter prints one value per pass, for piping into compstack rm
// or a shell loop. The value is the pass id unless OutputField names
// another field.
type IDsFormatter struct {
	field   string
	decimal bool
}

func NewIDsFormatter(opts FormatterOptions) *IDsFormatter {
	return &IDsFormatter{field: opts.OutputField, decimal: opts.Decimal}
}

func (f *IDsFormatter) Format(w io.Writer, passes []model.Pass) error {
	bw := bufio.NewWriter(w)
	for i := range passes {
		value := passes[i].ID
		if f.field != "" {
			value = FormatField(&passes[i], f.field, f.decimal)
		}
		bw.WriteString(value)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
